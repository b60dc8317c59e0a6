package clock

import (
	"context"
	"time"
)

// Native is a TimeSource backed by the runtime's monotonic clock and timers.
// Delay parks only the calling goroutine.
type Native struct {
	latch *latch
}

// Ensure Native implements TimeSource
var _ TimeSource = (*Native)(nil)

// NewNative creates a Native time source.
func NewNative() *Native {
	return &Native{latch: newLatch(time.Now)}
}

// Now returns the current time. time.Now carries a monotonic reading, so
// subtraction between two results is immune to wall clock changes.
func (n *Native) Now() time.Time {
	return n.latch.now()
}

// Delay blocks until d has elapsed or ctx is done.
func (n *Native) Delay(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}

// sleep waits on a dedicated timer so an early ctx cancellation releases it.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
