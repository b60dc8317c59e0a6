package clock

import (
	"sync"
	"time"
)

// latch turns any time reading into a non-decreasing one. A reading earlier
// than the last returned timestamp yields the last timestamp again.
type latch struct {
	mu   sync.Mutex
	last time.Time
	read func() time.Time
}

func newLatch(read func() time.Time) *latch {
	return &latch{read: read}
}

func (l *latch) now() time.Time {
	t := l.read()

	l.mu.Lock()
	defer l.mu.Unlock()
	if t.Before(l.last) {
		return l.last
	}
	l.last = t
	return t
}
