// Package clock abstracts time so the admission-control components can be
// tested without sleeping. Production code uses the real clock; tests use a
// virtual clock and advance it explicitly.
package clock

import "time"

// Clock supplies the current time to time-dependent components.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// Since returns the duration elapsed since t.
	Since(t time.Time) time.Duration
}

// RealClock delegates to the standard time package.
type RealClock struct{}

// NewRealClock creates a RealClock.
func NewRealClock() *RealClock {
	return &RealClock{}
}

func (c *RealClock) Now() time.Time {
	return time.Now()
}

func (c *RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}
