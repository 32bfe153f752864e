// Package ratelimit implements per-client sliding-window rate limiting with
// two overlapping windows (minute and hour). Timestamps are pruned lazily on
// access and idle clients are evicted by a periodic reaper.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour

	// cleanupInterval is how long a tracker's windows may go unpruned.
	// Counts can therefore be conservative by up to this long; they are
	// never permissive.
	cleanupInterval = 10 * time.Second
)

var (
	// ErrInvalidKey is returned when the client key is empty.
	ErrInvalidKey = errors.New("rate limit key cannot be empty")

	// ErrInvalidLimit is returned when a window limit is not positive.
	ErrInvalidLimit = errors.New("rate limit must be positive")

	// ErrRateLimitExceeded is returned when a client is over quota.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// Info is a read-only view of a client's remaining quota. It is recomputed on
// demand and never stored.
type Info struct {
	// RemainingMinute is the quota left in the rolling 60-second window.
	RemainingMinute int `json:"remaining_minute"`

	// RemainingHour is the quota left in the rolling 3600-second window.
	RemainingHour int `json:"remaining_hour"`

	// ResetInSeconds is how long until the binding (saturated) window frees a
	// slot; zero when neither window is saturated.
	ResetInSeconds int64 `json:"reset_in_seconds"`
}

// LimitExceededError reports a rejected check along with the quota view at
// the time of rejection. It unwraps to ErrRateLimitExceeded.
type LimitExceededError struct {
	Info Info
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded, try again in %d seconds", e.Info.ResetInSeconds)
}

func (e *LimitExceededError) Unwrap() error { return ErrRateLimitExceeded }

// Config holds the per-client window limits.
type Config struct {
	MaxPerMinute int
	MaxPerHour   int
}

// Validate checks that both limits are positive.
func (c Config) Validate() error {
	if c.MaxPerMinute <= 0 {
		return fmt.Errorf("%w: max per minute = %d", ErrInvalidLimit, c.MaxPerMinute)
	}
	if c.MaxPerHour <= 0 {
		return fmt.Errorf("%w: max per hour = %d", ErrInvalidLimit, c.MaxPerHour)
	}
	return nil
}

// Limiter is the per-client sliding-window rate limiter contract. The
// in-memory implementation is the default; the Redis implementation shares
// counts across instances.
type Limiter interface {
	// CheckAndRecord admits and records one request for key, or rejects with
	// a *LimitExceededError without recording. Check-then-record is atomic
	// per key: concurrent callers on one key can never both take the last
	// quota slot.
	CheckAndRecord(ctx context.Context, key string) (Info, error)

	// Status returns the quota view for key without recording anything.
	// Idempotent apart from time-derived reset countdowns.
	Status(ctx context.Context, key string) (Info, error)

	// PruneIdle evicts clients whose hour window is entirely stale and
	// returns how many were removed.
	PruneIdle(ctx context.Context) (int, error)
}
