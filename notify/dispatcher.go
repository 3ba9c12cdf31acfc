package notify

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/bogdanuch/feeno-api/bus"
	"github.com/bogdanuch/feeno-api/metrics"
	"github.com/bogdanuch/feeno-api/notifyqueue"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"
	"golang.org/x/time/rate"
)

var errUnknownKind = errors.New("unknown notification kind")

// Deduplicator filters redelivered bus events
type Deduplicator interface {
	FirstSeen(ctx context.Context, key string) (bool, error)
}

type Dispatcher struct {
	log   *zap.Logger
	queue notifyqueue.Queue
	sink  Sink
	dedup Deduplicator
}

// NewDispatcher creates a dispatcher, dedup may be nil
func NewDispatcher(log *zap.Logger, queue notifyqueue.Queue, sink Sink, dedup Deduplicator) *Dispatcher {
	return &Dispatcher{
		log:   log.Named("dispatcher"),
		queue: queue,
		sink:  sink,
		dedup: dedup,
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, kind string, payload []byte, highPriority bool) error {
	data, err := json.Marshal(envelope{Kind: kind, Payload: payload})
	if err != nil {
		return err
	}
	if err := d.queue.Push(ctx, data, highPriority); err != nil {
		return err
	}
	metrics.IncNotificationsQueued()
	return nil
}

// NotifyCancel queues the alert for a cancellation made by this node
func (d *Dispatcher) NotifyCancel(ctx context.Context, bundleID, broadcasts, initiator string) error {
	payload, err := json.Marshal(CancelEvent{
		BundleID:   bundleID,
		Broadcasts: Broadcasts(broadcasts),
		Initiator:  initiator,
	})
	if err != nil {
		return err
	}
	if d.duplicate(ctx, d.log, cancelKey(bundleID)) {
		return nil
	}
	return d.enqueue(ctx, CancelEventName, payload, true)
}

// Handlers returns the bus handlers keyed by routing key
func (d *Dispatcher) Handlers() map[string]func(ctx context.Context, body []byte) error {
	return map[string]func(ctx context.Context, body []byte) error{
		CancelEventName:      d.HandleCancel,
		TxMinedEventName:     d.HandleTxMined,
		ChatMessageEventName: d.HandleChatMessage,
	}
}

func (d *Dispatcher) HandleCancel(ctx context.Context, body []byte) error {
	var ev CancelEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return d.malformed(CancelEventName, err)
	}
	return d.handle(ctx, CancelEventName, cancelKey(ev.BundleID), body, true)
}

func (d *Dispatcher) HandleTxMined(ctx context.Context, body []byte) error {
	var ev TxMinedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return d.malformed(TxMinedEventName, err)
	}
	return d.handle(ctx, TxMinedEventName, "mined:"+strings.ToLower(ev.BundleID)+":"+strings.ToLower(ev.TransactionHash), body, true)
}

func (d *Dispatcher) HandleChatMessage(ctx context.Context, body []byte) error {
	var ev ChatMessageEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return d.malformed(ChatMessageEventName, err)
	}
	// chat events carry no id of their own, only a redelivery of the same bus message is a duplicate
	var key string
	if delivery, ok := bus.DeliveryFromContext(ctx); ok && delivery.MessageID != "" {
		key = "chat:" + idHash(delivery.MessageID)
	}
	return d.handle(ctx, ChatMessageEventName, key, body, false)
}

// bundle ids are case insensitive, the store keys them lower-cased too
func cancelKey(bundleID string) string {
	return "cancel:" + strings.ToLower(bundleID)
}

// idHash bounds the length of publisher chosen ids used in redis keys
func idHash(id string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(id))
	return hex.EncodeToString(h.Sum(nil))
}

func (d *Dispatcher) malformed(kind string, err error) error {
	metrics.IncNotificationFailed(kind)
	d.log.Warn("Malformed bus event", zap.String("kind", kind), zap.Error(err))
	return nil
}

// duplicate reports whether the event was already queued, lookup failures and empty keys let the event through
func (d *Dispatcher) duplicate(ctx context.Context, logger *zap.Logger, key string) bool {
	if d.dedup == nil || key == "" {
		return false
	}
	first, err := d.dedup.FirstSeen(ctx, key)
	if err != nil {
		logger.Warn("Failed to check event for duplicates", zap.Error(err))
		return false
	}
	if !first {
		metrics.IncNotificationsDuplicated()
		logger.Debug("Duplicate event skipped", zap.String("key", key))
	}
	return !first
}

// handle never returns an error, the bus acknowledges every delivery
func (d *Dispatcher) handle(ctx context.Context, kind, key string, body []byte, highPriority bool) error {
	metrics.IncBusEventReceived(kind)
	logger := d.log.With(zap.String("kind", kind))

	if d.duplicate(ctx, logger, key) {
		return nil
	}
	if err := d.enqueue(ctx, kind, body, highPriority); err != nil {
		metrics.IncNotificationFailed(kind)
		logger.Error("Failed to queue notification", zap.Error(err))
	}
	return nil
}

// Process is the queue worker, sink failures are logged and the item is done
func (d *Dispatcher) Process(ctx context.Context, data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		d.log.Error("Failed to decode queued notification", zap.Error(err))
		return nil
	}
	logger := d.log.With(zap.String("kind", env.Kind))

	format, ok := formatters[env.Kind]
	if !ok {
		metrics.IncNotificationFailed(env.Kind)
		logger.Error("Failed to format notification", zap.Error(errUnknownKind))
		return nil
	}
	msg, err := format(env.Payload)
	if err != nil {
		metrics.IncNotificationFailed(env.Kind)
		logger.Warn("Failed to format notification", zap.Error(err))
		return nil
	}

	if err := d.sink.Send(ctx, msg); err != nil {
		metrics.IncNotificationFailed(env.Kind)
		logger.Error("Failed to send notification", zap.Error(err))
		return nil
	}
	metrics.IncNotificationDispatched(env.Kind)
	return nil
}

// Start runs the queue workers until ctx is done
func (d *Dispatcher) Start(ctx context.Context, workers int, limit rate.Limit, burst int) *sync.WaitGroup {
	return d.queue.StartProcessLoop(ctx, notifyqueue.MultipleWorkers(d.Process, workers, limit, burst))
}
