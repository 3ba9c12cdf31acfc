package notifyqueue

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// MultipleWorkers returns n copies of process sharing one limiter, so the pool as a whole respects the sink rate.
// process is called concurrently.
func MultipleWorkers(process ProcessFunc, n int, limit rate.Limit, burst int) []ProcessFunc {
	if n < 1 {
		n = 1
	}
	if burst < 1 {
		// a zero burst never admits an event unless the limit is infinite
		burst = 1
	}
	limiter := rate.NewLimiter(limit, burst)

	limited := func(ctx context.Context, data []byte) error {
		// Wait fails fast when the delay would outlive the worker deadline, the item is then retried
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrProcessWorkerError, err)
		}
		return process(ctx, data)
	}

	workers := make([]ProcessFunc, n)
	for i := range workers {
		workers[i] = limited
	}
	return workers
}
