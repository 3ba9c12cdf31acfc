// Package spike coalesces bursts of lookups of the same external resource into one fetch
package spike

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	defaultCleanupInterval = time.Minute
	defaultFetchTimeout    = 10 * time.Second
)

// Handler is the cache backing a Manager, SetErr and GetErr are optional
type Handler[T any] struct {
	Fetch func(ctx context.Context, k string) (T, error)
	Set   func(k string, v T)
	Get   func(k string) (T, bool)

	SetErr func(k string, err error)
	GetErr func(k string) (error, bool)

	FetchTimeout time.Duration
}

type result[T any] struct {
	v T
	e error
}

// Manager runs at most one fetch per key at a time, callers arriving during a fetch wait for its result
type Manager[T any] struct {
	handler Handler[T]

	mu      sync.Mutex
	waiters map[string][]chan<- result[T]
}

// NewCustomManager uses the cache provided by h
func NewCustomManager[T any](h Handler[T]) *Manager[T] {
	if h.FetchTimeout == 0 {
		h.FetchTimeout = defaultFetchTimeout
	}
	return &Manager[T]{
		handler: h,
		waiters: make(map[string][]chan<- result[T]),
	}
}

// NewManager caches successful fetches for cacheTime in memory
func NewManager[T any](fetch func(ctx context.Context, k string) (T, error), cacheTime time.Duration) *Manager[T] {
	return NewManagerWithErrorCache(fetch, cacheTime, 0)
}

// NewManagerWithErrorCache also remembers failed fetches for errorCacheTime,
// so a key that keeps failing does not hit the upstream on every call
func NewManagerWithErrorCache[T any](fetch func(ctx context.Context, k string) (T, error), cacheTime, errorCacheTime time.Duration) *Manager[T] {
	values := gocache.New(cacheTime, defaultCleanupInterval)
	h := Handler[T]{
		Fetch: fetch,
		Set:   func(k string, v T) { values.Set(k, v, cacheTime) },
		Get: func(k string) (T, bool) {
			v, ok := values.Get(k)
			if !ok {
				var zero T
				return zero, false
			}
			return v.(T), true //nolint:forcetypeassert
		},
	}
	if errorCacheTime > 0 {
		failures := gocache.New(errorCacheTime, defaultCleanupInterval)
		h.SetErr = func(k string, err error) { failures.Set(k, err, errorCacheTime) }
		h.GetErr = func(k string) (error, bool) {
			v, ok := failures.Get(k)
			if !ok {
				return nil, false
			}
			return v.(error), true //nolint:forcetypeassert
		}
	}
	return NewCustomManager(h)
}

func (m *Manager[T]) cached(k string) (result[T], bool) {
	if v, ok := m.handler.Get(k); ok {
		return result[T]{v: v}, true
	}
	if m.handler.GetErr != nil {
		if err, ok := m.handler.GetErr(k); ok {
			return result[T]{e: err}, true
		}
	}
	return result[T]{}, false
}

// subscribe returns a channel with the result for k, starting a fetch unless one is running
func (m *Manager[T]) subscribe(k string) <-chan result[T] {
	ch := make(chan result[T], 1)

	m.mu.Lock()
	defer m.mu.Unlock()

	// a fetch may have finished between the caller's cache check and the lock
	if r, ok := m.cached(k); ok {
		ch <- r
		return ch
	}
	running := len(m.waiters[k]) > 0
	m.waiters[k] = append(m.waiters[k], ch)
	if !running {
		go m.fetch(k)
	}
	return ch
}

func (m *Manager[T]) fetch(k string) {
	// the fetch outlives any single caller, so it is bound by its own timeout
	ctx, cancel := context.WithTimeout(context.Background(), m.handler.FetchTimeout)
	defer cancel()

	v, err := m.handler.Fetch(ctx, k)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		m.handler.Set(k, v)
	} else if m.handler.SetErr != nil {
		m.handler.SetErr(k, err)
	}
	for _, ch := range m.waiters[k] {
		ch <- result[T]{v: v, e: err}
	}
	delete(m.waiters, k)
}

// GetResult returns the cached value for k or waits for a fetch, ctx only bounds the wait
func (m *Manager[T]) GetResult(ctx context.Context, k string) (T, error) { //nolint:ireturn
	if r, ok := m.cached(k); ok {
		return r.v, r.e
	}
	select {
	case r := <-m.subscribe(k):
		return r.v, r.e
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
