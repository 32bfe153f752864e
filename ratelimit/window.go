package ratelimit

import (
	"sync"
	"time"
)

// tracker holds one client's request timestamps for both windows. Both
// sequences are append-only between cleanups, so they stay in non-decreasing
// order. All access goes through mu; the map holding trackers has its own
// lock, so unrelated clients never contend here.
type tracker struct {
	mu          sync.Mutex
	minuteHits  []time.Time
	hourHits    []time.Time
	lastCleanup time.Time
}

func newTracker(now time.Time) *tracker {
	return &tracker{lastCleanup: now}
}

// maybeCleanup prunes both windows if more than cleanupInterval has passed
// since the last pruning. Caller must hold t.mu.
func (t *tracker) maybeCleanup(now time.Time) {
	if now.Sub(t.lastCleanup) > cleanupInterval {
		t.cleanup(now)
	}
}

// cleanup drops timestamps that fell out of their windows. Caller must hold t.mu.
func (t *tracker) cleanup(now time.Time) {
	t.minuteHits = retainAfter(t.minuteHits, now.Add(-minuteWindow))
	t.hourHits = retainAfter(t.hourHits, now.Add(-hourWindow))
	t.lastCleanup = now
}

// retainAfter keeps timestamps strictly after cutoff, reusing the backing array.
func retainAfter(hits []time.Time, cutoff time.Time) []time.Time {
	kept := hits[:0]
	for _, ts := range hits {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

// record appends now to both windows. Caller must hold t.mu.
func (t *tracker) record(now time.Time) {
	t.minuteHits = append(t.minuteHits, now)
	t.hourHits = append(t.hourHits, now)
}

// overLimit reports whether either window is saturated. Caller must hold t.mu.
func (t *tracker) overLimit(maxPerMinute, maxPerHour int) bool {
	return len(t.minuteHits) >= maxPerMinute || len(t.hourHits) >= maxPerHour
}

// info projects the current quota view. The reset countdown comes from the
// oldest timestamp of whichever window is saturated, falling back to the full
// horizon when that window is somehow empty. Caller must hold t.mu.
func (t *tracker) info(now time.Time, maxPerMinute, maxPerHour int) Info {
	minuteCount := len(t.minuteHits)
	hourCount := len(t.hourHits)

	var reset int64
	switch {
	case minuteCount >= maxPerMinute:
		reset = resetIn(t.minuteHits, now, minuteWindow)
	case hourCount >= maxPerHour:
		reset = resetIn(t.hourHits, now, hourWindow)
	}

	return Info{
		RemainingMinute: clampRemaining(maxPerMinute, minuteCount),
		RemainingHour:   clampRemaining(maxPerHour, hourCount),
		ResetInSeconds:  reset,
	}
}

func resetIn(hits []time.Time, now time.Time, window time.Duration) int64 {
	horizon := int64(window / time.Second)
	if len(hits) == 0 {
		return horizon
	}
	elapsed := int64(now.Sub(hits[0]) / time.Second)
	if elapsed >= horizon {
		return 0
	}
	return horizon - elapsed
}

func clampRemaining(limit, count int) int {
	if count >= limit {
		return 0
	}
	return limit - count
}

// idle reports whether the hour window is empty or entirely older than the
// hour horizon. A client with a single hit 59 minutes ago is not idle yet;
// eviction waits for the whole hour window to go stale. Caller must hold t.mu.
func (t *tracker) idle(now time.Time) bool {
	if len(t.hourHits) == 0 {
		return true
	}
	cutoff := now.Add(-hourWindow)
	// Hits are ordered, so the newest one decides.
	return !t.hourHits[len(t.hourHits)-1].After(cutoff)
}
