package clock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Time source names accepted by Select.
const (
	SourceNative    = "native"
	SourceEventLoop = "eventloop"
)

// ErrUnknownSource is returned by Select for an unrecognised name.
var ErrUnknownSource = errors.New("unknown time source")

// EventLoop is a TimeSource for hosts that only offer timer callbacks. Each
// Delay registers a single-shot callback on the host and waits for it to
// close a one-shot channel.
type EventLoop struct {
	host  Clock
	latch *latch
}

// Ensure EventLoop implements TimeSource
var _ TimeSource = (*EventLoop)(nil)

// NewEventLoop creates a TimeSource that schedules its delays on host.
func NewEventLoop(host Clock) *EventLoop {
	return &EventLoop{
		host:  host,
		latch: newLatch(host.Now),
	}
}

// Now returns the host's time, latched so it never decreases.
func (e *EventLoop) Now() time.Time {
	return e.latch.now()
}

// Delay waits for a host timer callback. If the host cannot register the
// timer, Delay falls back to a blocking runtime sleep so it still resolves.
func (e *EventLoop) Delay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	fired := make(chan struct{})
	var once sync.Once
	t := e.register(d, func() {
		once.Do(func() { close(fired) })
	})
	if t == nil {
		return sleep(ctx, d)
	}

	select {
	case <-fired:
		return nil
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	}
}

// register treats a panicking host like one that returned no timer.
func (e *EventLoop) register(d time.Duration, f func()) (t Timer) {
	defer func() {
		if r := recover(); r != nil {
			t = nil
		}
	}()
	return e.host.AfterFunc(d, f)
}

// Select returns the TimeSource configured by name. host is the timer
// facility used by the event-loop source; nil means a RealClock.
func Select(name string, host Clock) (TimeSource, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SourceNative:
		return NewNative(), nil
	case SourceEventLoop:
		if host == nil {
			host = NewRealClock()
		}
		return NewEventLoop(host), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
}
