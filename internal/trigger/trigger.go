// Package trigger carries start requests from arbitrary goroutines to the
// single goroutine that runs an animation.
package trigger

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Recv once the channel is closed.
var ErrClosed = errors.New("trigger channel closed")

// Channel is an unbounded, single-consumer wake-up signal. Send never blocks
// and never drops: each Send satisfies exactly one Recv. It can be used for
// as long as the owner likes; it isn't one-shot.
type Channel struct {
	mu      sync.Mutex
	pending int
	closed  bool
	ready   chan struct{} // holds a token while pending > 0
	done    chan struct{}
}

// New creates an empty Channel.
func New() *Channel {
	return &Channel{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Send queues a trigger. It is a no-op on a closed channel.
func (c *Channel) Send() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.pending++
	select {
	case c.ready <- struct{}{}:
	default:
		// token already present
	}
}

// Recv blocks until a trigger is available, ctx is done, or the channel is
// closed. Triggers still pending when the channel closes are discarded.
func (c *Channel) Recv(ctx context.Context) error {
	for {
		select {
		case <-c.ready:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return ErrClosed
			}
			if c.pending == 0 {
				c.mu.Unlock()
				continue
			}
			c.pending--
			if c.pending > 0 {
				select {
				case c.ready <- struct{}{}:
				default:
				}
			}
			c.mu.Unlock()
			return nil
		case <-c.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pending returns the number of triggers not yet received.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Close wakes any blocked Recv with ErrClosed. Closing twice is harmless.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.pending = 0
	close(c.done)
}
