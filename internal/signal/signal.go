// Package signal provides the observable value cells the animation driver
// publishes into. A host UI reads a cell, or subscribes to it to learn when
// it needs to redraw.
package signal

import "sync"

// Reader is a cell that can be read.
type Reader[T any] interface {
	Read() T
}

// Cell is a mutable cell. Implementations must give torn-free reads while a
// single writer is writing.
type Cell[T any] interface {
	Reader[T]
	Write(v T)
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// Signal is a Cell guarded by a read-write mutex that notifies subscribers on
// every write.
type Signal[T any] struct {
	mu     sync.RWMutex
	value  T
	subs   []subscriber[T]
	nextID uint64
}

// Ensure Signal implements Cell
var _ Cell[int] = (*Signal[int])(nil)

// New creates a Signal holding v.
func New[T any](v T) *Signal[T] {
	return &Signal[T]{value: v}
}

// Read returns the current value.
func (s *Signal[T]) Read() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Write stores v and then calls every subscriber with it, in subscription
// order, on the writing goroutine.
func (s *Signal[T]) Write(v T) {
	s.mu.Lock()
	s.value = v
	subs := make([]subscriber[T], len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(v)
	}
}

// Subscribe registers fn for future writes and returns a function that
// removes it. Calling the returned function more than once is harmless.
func (s *Signal[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber[T]{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (s *Signal[T]) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
