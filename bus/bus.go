// Package bus connects the service to the RabbitMQ message bus: lifecycle events are consumed from a direct
// exchange and venue requests are sent as RPC calls over direct reply-to.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bogdanuch/feeno-api/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	replyQueue  = "amq.rabbitmq.reply-to"
	contentType = "application/json"
)

var (
	ErrConnectionLost = errors.New("bus connection lost")
	ErrNotConnected   = errors.New("bus is not connected")
	ErrAlreadyRunning = errors.New("bus is already running")
)

// Handler processes the body of a delivery, the delivery is acknowledged whatever it returns.
// The ctx passed to a Handler carries the Delivery metadata.
type Handler func(ctx context.Context, body []byte) error

// Delivery is the broker metadata of the message being handled
type Delivery struct {
	// MessageID is set by the publisher and survives redeliveries, empty if the publisher did not set it
	MessageID   string
	Redelivered bool
}

type deliveryKey struct{}

func WithDelivery(ctx context.Context, d Delivery) context.Context {
	return context.WithValue(ctx, deliveryKey{}, d)
}

// DeliveryFromContext returns the metadata of the delivery being handled, if any
func DeliveryFromContext(ctx context.Context) (Delivery, bool) {
	d, ok := ctx.Value(deliveryKey{}).(Delivery)
	return d, ok
}

type Config struct {
	URL      string
	Exchange string
	// QueuePrefix names the consumer queues as "<prefix>.<routing key>"
	QueuePrefix   string
	ProbeQueue    string
	ProbeInterval time.Duration
	Heartbeat     time.Duration
}

var DefaultConfig = Config{
	Exchange:      "feeno",
	QueuePrefix:   "feeno_api_service",
	ProbeInterval: 20 * time.Second,
	Heartbeat:     10 * time.Second,
}

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Bus struct {
	log    *zap.Logger
	config Config

	handlers map[string]Handler

	mu      sync.Mutex
	running bool
	rpc     publisher
	pending map[string]chan amqp.Delivery
}

func New(log *zap.Logger, config Config) *Bus {
	return &Bus{
		log:      log.Named("bus"),
		config:   config,
		handlers: make(map[string]Handler),
		pending:  make(map[string]chan amqp.Delivery),
	}
}

// Subscribe registers the handler of a routing key, it must be called before Run
func (b *Bus) Subscribe(routingKey string, handler Handler) {
	b.handlers[routingKey] = handler
}

func (b *Bus) queueName(routingKey string) string {
	return b.config.QueuePrefix + "." + routingKey
}

// Run connects, consumes until ctx is done or the connection is lost.
// It returns ctx.Err() on shutdown and an error wrapping ErrConnectionLost otherwise.
func (b *Bus) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrAlreadyRunning
	}
	b.running = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	// consumers stop once the connection is closed, so it must close before the wait
	var wg sync.WaitGroup
	defer wg.Wait()

	conn, err := amqp.DialConfig(b.config.URL, amqp.Config{
		Heartbeat:  b.config.Heartbeat,
		Properties: amqp.Table{"connection_name": b.config.QueuePrefix},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	defer conn.Close()
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := b.consume(runCtx, conn, &wg); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	if err := b.startRPC(conn, &wg); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	defer b.stopRPC()

	if b.config.ProbeQueue != "" && b.config.ProbeInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.probeLoop(runCtx, conn)
		}()
	}

	b.log.Info("Bus connected", zap.String("exchange", b.config.Exchange), zap.Int("subscriptions", len(b.handlers)))

	select {
	case <-ctx.Done():
		cancel()
		_ = conn.Close()
		return ctx.Err()
	case amqpErr := <-closed:
		cancel()
		if amqpErr == nil {
			return ErrConnectionLost
		}
		return fmt.Errorf("%w: %w", ErrConnectionLost, amqpErr)
	}
}

func (b *Bus) consume(ctx context.Context, conn *amqp.Connection, wg *sync.WaitGroup) error {
	if len(b.handlers) == 0 {
		return nil
	}
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(b.config.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return err
	}

	for routingKey, handler := range b.handlers {
		queue := b.queueName(routingKey)
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare %s: %w", queue, err)
		}
		if err := ch.QueueBind(queue, routingKey, b.config.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", queue, err)
		}
		deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume %s: %w", queue, err)
		}

		wg.Add(1)
		go func(routingKey string, handler Handler) {
			defer wg.Done()
			for d := range deliveries {
				b.deliver(ctx, routingKey, handler, d)
			}
		}(routingKey, handler)
	}
	return nil
}

func (b *Bus) deliver(ctx context.Context, routingKey string, handler Handler, d amqp.Delivery) {
	logger := b.log.With(zap.String("routingKey", routingKey), zap.String("messageId", d.MessageId))
	ctx = WithDelivery(ctx, Delivery{MessageID: d.MessageId, Redelivered: d.Redelivered})
	if err := handler(ctx, d.Body); err != nil {
		logger.Warn("Failed to handle bus event", zap.Error(err))
	}
	if err := d.Ack(false); err != nil {
		logger.Error("Failed to ack bus event", zap.Error(err))
	}
}

func (b *Bus) startRPC(conn *amqp.Connection, wg *sync.WaitGroup) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	replies, err := ch.Consume(replyQueue, "", true, false, false, false, nil)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.rpc = ch
	b.mu.Unlock()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for d := range replies {
			b.resolve(d)
		}
	}()
	return nil
}

func (b *Bus) stopRPC() {
	b.mu.Lock()
	b.rpc = nil
	b.mu.Unlock()
}

func (b *Bus) resolve(d amqp.Delivery) {
	b.mu.Lock()
	replies, ok := b.pending[d.CorrelationId]
	b.mu.Unlock()
	if !ok {
		b.log.Debug("Reply without a pending call", zap.String("correlationId", d.CorrelationId))
		return
	}
	select {
	case replies <- d:
	default:
	}
}

// Call publishes request to queue and decodes the correlated reply into response
func (b *Bus) Call(ctx context.Context, queue string, request, response any) error {
	body, err := json.Marshal(request)
	if err != nil {
		return err
	}

	id := uuid.NewString()
	replies := make(chan amqp.Delivery, 1)

	b.mu.Lock()
	rpc := b.rpc
	if rpc == nil {
		b.mu.Unlock()
		return ErrNotConnected
	}
	b.pending[id] = replies
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	err = rpc.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:   contentType,
		CorrelationId: id,
		ReplyTo:       replyQueue,
		Timestamp:     time.Now(),
		Body:          body,
	})
	if err != nil {
		return err
	}

	select {
	case d := <-replies:
		return json.Unmarshal(d.Body, response)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) probeLoop(ctx context.Context, conn *amqp.Connection) {
	ticker := time.NewTicker(b.config.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.probe(conn); err != nil {
				b.log.Error("Bus liveness probe failed, closing connection", zap.String("queue", b.config.ProbeQueue), zap.Error(err))
				_ = conn.Close()
				return
			}
		}
	}
}

// probe checks the probe queue on a throwaway channel, a missing queue closes that channel only
func (b *Bus) probe(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	_, err = ch.QueueDeclarePassive(b.config.ProbeQueue, true, false, false, false, nil)
	return err
}

// Serve runs the bus and reconnects with exponential backoff until ctx is done
func (b *Bus) Serve(ctx context.Context) {
	back := backoff.NewExponentialBackOff()
	back.MaxElapsedTime = 0
	back.MaxInterval = time.Minute

	for {
		started := time.Now()
		err := b.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > back.MaxInterval {
			back.Reset()
		}
		delay := back.NextBackOff()
		metrics.IncBusReconnects()
		b.log.Warn("Bus disconnected, reconnecting", zap.Error(err), zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
