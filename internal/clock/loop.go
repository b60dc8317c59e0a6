package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// Loop is a single-threaded event loop in the style of a browser host: posted
// tasks and expired timer callbacks run one at a time, in order, on the loop's
// own goroutine.
type Loop struct {
	origin time.Time

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// Ensure Loop implements Clock
var _ Clock = (*Loop)(nil)

// NewLoop creates a Loop and starts its goroutine.
func NewLoop() *Loop {
	l := &Loop{
		origin: time.Now(),
		done:   make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// Now returns the loop's high-resolution time: its origin plus the monotonic
// time elapsed since the loop was created.
func (l *Loop) Now() time.Time {
	return l.origin.Add(l.Elapsed())
}

// Elapsed returns the monotonic time since the loop was created, the
// equivalent of performance.now().
func (l *Loop) Elapsed() time.Duration {
	return time.Since(l.origin)
}

// Post queues f to run on the loop. Returns false if the loop is closed.
func (l *Loop) Post(f func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.queue = append(l.queue, f)
	l.cond.Signal()
	return true
}

// AfterFunc schedules f to run on the loop once d has elapsed. It returns nil
// when the loop is already closed. Timers registered before Close still fire:
// if the loop has gone away by then, f runs on the runtime timer goroutine.
func (l *Loop) AfterFunc(d time.Duration, f func()) Timer {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return nil
	}

	lt := &loopTimer{}
	lt.timer = time.AfterFunc(d, func() {
		task := func() {
			if lt.fire() {
				f()
			}
		}
		if !l.Post(task) {
			task()
		}
	})
	return lt
}

// Close stops accepting work, runs whatever is already queued, and waits for
// the loop goroutine to exit. It must not be called from a loop task.
func (l *Loop) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		l.cond.Broadcast()
	}
	l.mu.Unlock()
	<-l.done
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		task()
	}
}

const (
	timerPending int32 = iota
	timerFired
	timerStopped
)

// loopTimer tracks a callback queued through AfterFunc. A timer stopped after
// its callback was posted but before it ran is still suppressed.
type loopTimer struct {
	timer *time.Timer
	state atomic.Int32
}

func (t *loopTimer) fire() bool {
	return t.state.CompareAndSwap(timerPending, timerFired)
}

// Stop implements Timer.Stop.
func (t *loopTimer) Stop() bool {
	t.timer.Stop()
	return t.state.CompareAndSwap(timerPending, timerStopped)
}
