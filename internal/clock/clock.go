// Package clock provides the time abstractions the animation driver runs on.
//
// A Clock is a host's timer facility (what a browser calls setTimeout). A
// TimeSource is what the driver consumes: a monotonic Now and a Delay that
// suspends the calling goroutine. Two TimeSources ship with the package:
// Native, backed by runtime timers, and EventLoop, which bridges single-shot
// timer callbacks registered on a Clock (usually a Loop) into a blocking wait.
package clock

import (
	"context"
	"time"
)

// Clock provides an abstraction over timer callbacks for testability.
type Clock interface {
	// AfterFunc waits for the duration to elapse and then calls f.
	// Returns a Timer that can be used to cancel the call, or nil when the
	// host could not register the timer.
	AfterFunc(d time.Duration, f func()) Timer
	// Now returns the current time.
	Now() time.Time
}

// Timer represents a pending AfterFunc callback.
type Timer interface {
	// Stop prevents the Timer from firing. Returns true if the call was stopped,
	// false if the timer has already expired or been stopped.
	Stop() bool
}

// TimeSource is the capability the animation driver samples time through.
type TimeSource interface {
	// Now returns a timestamp that never goes backwards between calls.
	Now() time.Time
	// Delay suspends the caller for at least d. It returns nil once the delay
	// has elapsed and ctx.Err() if ctx is cancelled first.
	Delay(ctx context.Context, d time.Duration) error
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// NewRealClock creates a new RealClock.
func NewRealClock() *RealClock {
	return &RealClock{}
}

// AfterFunc implements Clock.AfterFunc using time.AfterFunc.
func (c *RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return &realTimer{timer: time.AfterFunc(d, f)}
}

// Now implements Clock.Now using time.Now.
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// realTimer wraps time.Timer to implement Timer interface.
type realTimer struct {
	timer *time.Timer
}

// Stop implements Timer.Stop.
func (t *realTimer) Stop() bool {
	return t.timer.Stop()
}
