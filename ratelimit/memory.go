package ratelimit

import (
	"context"
	"log"
	"sync"

	"github.com/yourusername/wrenchgate/clock"
)

// MemoryLimiter is the in-process Limiter. Trackers live in a map behind an
// RWMutex; each tracker carries its own mutex, so the check-then-record
// sequence is one critical section per key and distinct keys proceed in
// parallel.
type MemoryLimiter struct {
	maxPerMinute int
	maxPerHour   int
	clk          clock.Clock

	mu       sync.RWMutex
	trackers map[string]*tracker
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter creates an in-memory limiter. A nil clk defaults to the
// real clock.
func NewMemoryLimiter(cfg Config, clk clock.Clock) (*MemoryLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &MemoryLimiter{
		maxPerMinute: cfg.MaxPerMinute,
		maxPerHour:   cfg.MaxPerHour,
		clk:          clk,
		trackers:     make(map[string]*tracker),
	}, nil
}

// CheckAndRecord implements Limiter.
func (l *MemoryLimiter) CheckAndRecord(_ context.Context, key string) (Info, error) {
	if key == "" {
		return Info{}, ErrInvalidKey
	}

	t := l.getOrCreate(key)

	t.mu.Lock()
	defer t.mu.Unlock()

	now := l.clk.Now()
	t.maybeCleanup(now)

	if t.overLimit(l.maxPerMinute, l.maxPerHour) {
		info := t.info(now, l.maxPerMinute, l.maxPerHour)
		return info, &LimitExceededError{Info: info}
	}

	t.record(now)
	return t.info(now, l.maxPerMinute, l.maxPerHour), nil
}

// Status implements Limiter. Unknown clients report full quotas; no tracker
// is created for them.
func (l *MemoryLimiter) Status(_ context.Context, key string) (Info, error) {
	if key == "" {
		return Info{}, ErrInvalidKey
	}

	l.mu.RLock()
	t, ok := l.trackers[key]
	l.mu.RUnlock()

	if !ok {
		return Info{RemainingMinute: l.maxPerMinute, RemainingHour: l.maxPerHour}, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := l.clk.Now()
	t.maybeCleanup(now)
	return t.info(now, l.maxPerMinute, l.maxPerHour), nil
}

// PruneIdle implements Limiter. It inspects each tracker under its own lock
// and takes the map write lock only for the individual deletions, so
// foreground checks on live keys are not held up by the sweep.
func (l *MemoryLimiter) PruneIdle(_ context.Context) (int, error) {
	now := l.clk.Now()

	l.mu.RLock()
	keys := make([]string, 0, len(l.trackers))
	for key := range l.trackers {
		keys = append(keys, key)
	}
	l.mu.RUnlock()

	removed := 0
	for _, key := range keys {
		l.mu.RLock()
		t, ok := l.trackers[key]
		l.mu.RUnlock()
		if !ok {
			continue
		}

		t.mu.Lock()
		stale := t.idle(now)
		t.mu.Unlock()
		if !stale {
			continue
		}

		l.mu.Lock()
		// Re-check under the write lock: the client may have come back
		// between the inspection and now.
		if cur, ok := l.trackers[key]; ok && cur == t {
			cur.mu.Lock()
			stillStale := cur.idle(now)
			cur.mu.Unlock()
			if stillStale {
				delete(l.trackers, key)
				removed++
			}
		}
		l.mu.Unlock()
	}

	l.mu.RLock()
	active := len(l.trackers)
	l.mu.RUnlock()
	log.Printf("ratelimit: pruned %d idle clients, %d active", removed, active)

	return removed, nil
}

// Count returns the number of tracked clients.
func (l *MemoryLimiter) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.trackers)
}

// getOrCreate fetches the tracker for key, creating it on first use. Read
// lock fast path, then a double-checked write lock.
func (l *MemoryLimiter) getOrCreate(key string) *tracker {
	l.mu.RLock()
	t, ok := l.trackers[key]
	l.mu.RUnlock()
	if ok {
		return t
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if t, ok = l.trackers[key]; ok {
		return t
	}
	t = newTracker(l.clk.Now())
	l.trackers[key] = t
	return t
}
