// Package notifyqueue buffers outgoing alerts in a redis sorted set.
//
// Every member is scored by the time it becomes due, which keeps delayed retries and fresh alerts in one ordering.
// Ties are broken by the member bytes: urgent alerts first, then fewer attempts, then the oldest.
//
// A worker pops the minimum with BZPopMin, so an alert popped by a worker that dies before finishing is lost.
// At most one alert per worker can be lost this way, which is acceptable for chat alerts.
//
// A ProcessFunc decides what happens next: nil finishes the alert, ErrProcessWorkerError or a worker timeout
// puts it back right away, ErrProcessRetryLater puts it back after RetryDelay. Both count against MaxRetries
// and an alert older than MaxAge is dropped. Any other error is logged and the alert is done.
package notifyqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bogdanuch/feeno-api/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrStaleItem         = errors.New("item is stale")
	ErrQueueFull         = errors.New("queue is full")
	ErrMaxRetriesReached = errors.New("max retries reached")
	ErrRequeueFailed     = errors.New("item requeue failed")
)

// Errors returned by ProcessFunc.
var (
	// ErrProcessWorkerError puts the item back for an immediate retry by any worker
	ErrProcessWorkerError = errors.New("worker error, retry processing on another worker")
	// ErrProcessRetryLater puts the item back for a retry after RetryDelay
	ErrProcessRetryLater = errors.New("retry processing later")
)

const (
	// BZPopMin does not accept a shorter timeout
	popTimeout   = time.Second
	maxPollDelay = 100 * time.Millisecond
)

type ProcessFunc func(ctx context.Context, data []byte) error

type Queue interface {
	Push(ctx context.Context, data []byte, highPriority bool) error
	StartProcessLoop(ctx context.Context, workers []ProcessFunc) *sync.WaitGroup
}

type RedisQueue struct {
	log *zap.Logger
	red *redis.Client
	key string
	now func() time.Time

	Config
}

func NewRedisQueue(log *zap.Logger, red *redis.Client, queueName string, config Config) *RedisQueue {
	return &RedisQueue{
		log:    log.With(zap.String("queue", queueName)),
		red:    red,
		key:    queueName,
		now:    time.Now,
		Config: config,
	}
}

// Push stores data for processing, urgent items may use the higher HighPrio capacity
func (s *RedisQueue) Push(ctx context.Context, data []byte, highPriority bool) error {
	now := s.now()
	err := s.add(ctx, item{
		payload:  data,
		due:      now,
		expires:  now.Add(s.MaxAge),
		enqueued: now,
		urgent:   highPriority,
	})
	if err != nil {
		return err
	}
	s.log.Debug("Pushed to queue", zap.Bool("high_priority", highPriority))
	return nil
}

func (s *RedisQueue) queuedItems(ctx context.Context) (uint64, error) {
	return s.red.ZCard(ctx, s.key).Uint64()
}

func (s *RedisQueue) capacity(urgent bool) uint64 {
	if urgent {
		return s.MaxQueuedItemsHighPrio
	}
	return s.MaxQueuedItemsLowPrio
}

func (s *RedisQueue) add(ctx context.Context, it item) error {
	queued, err := s.queuedItems(ctx)
	if err != nil {
		s.log.Warn("Failed to count queued items", zap.Error(err))
		return err
	}
	if limit := s.capacity(it.urgent); queued >= limit {
		s.log.Error("Queue is full", zap.Uint64("queued", queued), zap.Uint64("limit", limit))
		return ErrQueueFull
	}
	score, member := it.encode()
	return s.red.ZAdd(ctx, s.key, redis.Z{Score: score, Member: member}).Err()
}

// pop returns redis.Nil when nothing arrived within popTimeout
func (s *RedisQueue) pop(ctx context.Context) (item, error) {
	res, err := s.red.BZPopMin(ctx, popTimeout, s.key).Result()
	if err != nil {
		return item{}, err
	}
	member, ok := res.Member.(string)
	if !ok {
		return item{}, errInvalidPackedData
	}
	return decodeItem(res.Score, []byte(member))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// step handles one item, errors it returns are redis failures worth retrying
func (s *RedisQueue) step(ctx context.Context, process ProcessFunc) error {
	it, err := s.pop(ctx)
	switch {
	case errors.Is(err, redis.Nil):
		return nil
	case errors.Is(err, errInvalidPackedData):
		s.log.Error("Dropping undecodable item", zap.Error(err))
		return nil
	case err != nil:
		return err
	}

	logger := s.log.With(zap.Uint16("attempt", it.attempt))
	now := s.now()
	if now.After(it.expires) {
		metrics.IncQueuePopStaleItem()
		logger.Debug("Skipping stale item", zap.Time("expires", it.expires))
		return nil
	}
	if wait := it.due.Sub(now); wait > 0 {
		if err := s.putBack(ctx, it, false, 0); err != nil {
			return err
		}
		sleepCtx(ctx, min(wait, maxPollDelay))
		return nil
	}

	workerCtx, cancel := context.WithTimeout(ctx, s.WorkerTimeout)
	err = process(workerCtx, it.payload)
	cancel()

	switch {
	case err == nil:
		logger.Debug("Processed item", zap.Duration("time_in_queue", now.Sub(it.enqueued)))
		return nil
	case errors.Is(err, ErrProcessWorkerError), errors.Is(err, context.DeadlineExceeded):
		logger.Warn("Worker failed, retrying", zap.Error(err))
		return s.putBack(ctx, it, true, 0)
	case errors.Is(err, ErrProcessRetryLater):
		logger.Debug("Retrying later", zap.Error(err))
		return s.putBack(ctx, it, true, s.RetryDelay)
	default:
		logger.Error("Item failed", zap.Error(err))
		return nil
	}
}

// StartProcessLoop runs one goroutine per worker until ctx is done
func (s *RedisQueue) StartProcessLoop(ctx context.Context, workers []ProcessFunc) *sync.WaitGroup {
	wg := new(sync.WaitGroup)
	wg.Add(len(workers))
	for _, process := range workers {
		go func(process ProcessFunc) {
			defer wg.Done()
			s.work(ctx, process)
		}(process)
	}
	return wg
}

func (s *RedisQueue) work(ctx context.Context, process ProcessFunc) {
	exp := backoff.NewExponentialBackOff()
	exp.MaxInterval = 30 * time.Second
	exp.MaxElapsedTime = 2 * time.Minute
	back := backoff.WithContext(exp, ctx)

	for ctx.Err() == nil {
		err := backoff.Retry(func() error { return s.step(ctx, process) }, back)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("Queue worker failed", zap.Error(err))
		}
	}
}

// putBack requeues the item, items out of attempts or time are dropped without an error
func (s *RedisQueue) putBack(ctx context.Context, it item, countAttempt bool, delay time.Duration) error {
	err := s.requeue(ctx, it, countAttempt, delay)
	if errors.Is(err, ErrMaxRetriesReached) || errors.Is(err, ErrStaleItem) {
		metrics.IncQueueDroppedItem()
		s.log.Warn("Dropping item", zap.Error(err), zap.Uint16("attempt", it.attempt))
		return nil
	}
	return err
}

func (s *RedisQueue) requeue(ctx context.Context, it item, countAttempt bool, delay time.Duration) error {
	if countAttempt {
		if it.attempt >= s.MaxRetries {
			return ErrMaxRetriesReached
		}
		it.attempt++
	}
	if delay > 0 {
		it.due = s.now().Add(delay)
		if it.due.After(it.expires) {
			return ErrStaleItem
		}
	}

	exp := backoff.NewExponentialBackOff()
	exp.MaxElapsedTime = 4 * time.Second
	if err := backoff.Retry(func() error { return s.add(ctx, it) }, backoff.WithContext(exp, ctx)); err != nil {
		s.log.Error("Failed to requeue item", zap.Error(err))
		return errors.Join(err, ErrRequeueFailed)
	}
	return nil
}

// CleanQueues deletes the queue, for tests only
func (s *RedisQueue) CleanQueues(ctx context.Context) error {
	return s.red.Del(ctx, s.key).Err()
}
