package workerrun

import (
	"context"
	"time"
)

// RetryWithBackoff calls fn up to attempts times, sleeping 1<<i seconds
// between tries (1, 2, 4, 8 for attempts=5), matching the original
// worker's tree-fetch retry. Returns true as soon as fn reports success;
// false if every attempt failed or ctx was cancelled first.
func RetryWithBackoff(ctx context.Context, attempts int, fn func(ctx context.Context) (bool, error)) (bool, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		ok, err := fn(ctx)
		if err == nil && ok {
			return true, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(time.Duration(1<<uint(i)) * time.Second):
		}
	}
	return false, lastErr
}
