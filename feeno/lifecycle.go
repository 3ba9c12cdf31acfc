package feeno

import (
	"context"
	"strconv"
	"strings"

	"github.com/bogdanuch/feeno-api/metrics"
	"go.uber.org/zap"
)

// Notifier queues alerts for the notification dispatcher, it must not block on delivery
type Notifier interface {
	NotifyCancel(ctx context.Context, bundleID, broadcasts, initiator string) error
}

// Lifecycle owns the bundle state transitions this node is allowed to make
type Lifecycle struct {
	log      *zap.Logger
	store    Store
	notifier Notifier
}

func NewLifecycle(log *zap.Logger, store Store, notifier Notifier) *Lifecycle {
	return &Lifecycle{
		log:      log.Named("lifecycle"),
		store:    store,
		notifier: notifier,
	}
}

// ValidateBundleID rejects identifiers that can not belong to a broadcast bundle,
// which are 0x prefixed hex strings
func ValidateBundleID(id string) error {
	switch id {
	case "":
		return ErrInvalidRequest
	case "0x":
		return ErrInvalidRequest.WithMessage("Please, send transaction first")
	}
	digits, ok := strings.CutPrefix(strings.ToLower(id), "0x")
	if !ok || strings.IndexFunc(digits, notHex) >= 0 {
		return ErrInvalidRequest.WithMessage("Invalid bundle id")
	}
	return nil
}

func notHex(r rune) bool {
	return (r < '0' || r > '9') && (r < 'a' || r > 'f')
}

func (l *Lifecycle) GetStatus(ctx context.Context, id string) (BundleRecord, error) {
	if err := ValidateBundleID(id); err != nil {
		return BundleRecord{}, err
	}
	bundle, err := l.store.GetBundle(ctx, id)
	if err != nil {
		return BundleRecord{}, err
	}
	return bundle.Redacted(), nil
}

// Cancel moves an in-progress bundle to canceled.
// Bundles in any other state are returned unchanged, so repeated calls are safe.
func (l *Lifecycle) Cancel(ctx context.Context, id string) (BundleRecord, error) {
	if err := ValidateBundleID(id); err != nil {
		return BundleRecord{}, err
	}
	logger := l.log.With(zap.String("bundle", id))

	var canceled bool
	bundle, err := l.store.UpdateBundle(ctx, id, func(b *BundleRecord) (bool, error) {
		canceled = false
		if b.Status != BundleStatusInProgress {
			return false, nil
		}
		b.Status = BundleStatusCanceled
		canceled = true
		return true, nil
	})
	if err != nil {
		return BundleRecord{}, err
	}
	if !canceled {
		logger.Debug("Bundle is not in progress, nothing to cancel", zap.String("status", string(bundle.Status)))
		return bundle.Redacted(), nil
	}

	metrics.IncBundlesCanceled()
	logger.Info("Bundle canceled")

	broadcasts := strconv.Itoa(bundle.BroadcastCount) + "/" + strconv.Itoa(bundle.BlocksCountToResubmit)
	if err := l.notifier.NotifyCancel(ctx, strings.ToLower(id), broadcasts, CancelInitiatorUser); err != nil {
		logger.Error("Failed to queue cancel notification", zap.Error(err))
	}
	return bundle.Redacted(), nil
}
