package ratelimit

import (
	"context"
	"log"
	"time"
)

// StartReaper launches a goroutine that calls PruneIdle on l every interval,
// independent of request traffic. Call the returned function to stop it.
// A non-positive interval disables the reaper.
func StartReaper(l Limiter, interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				if _, err := l.PruneIdle(context.Background()); err != nil {
					log.Printf("ratelimit: reaper sweep failed: %v", err)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}
