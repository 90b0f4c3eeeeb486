// Package async provides small concurrency helpers: periodic timers,
// debounced broadcasts, multi-key locking and scatter/gather fan-out over a
// fixed range of work.
package async

import (
	"context"
	"time"
)

// RunEvery runs the given function on the provided interval until the
// context is cancelled.
func RunEvery(ctx context.Context, interval time.Duration, f func()) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				f()
			case <-ctx.Done():
				return
			}
		}
	}()
}
