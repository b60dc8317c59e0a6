// Package testutil provides test utilities including mocks, fixtures, and test database helpers.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/mescon/motion/internal/clock"
	"github.com/mescon/motion/internal/domain"
	"github.com/mescon/motion/internal/eventbus"
)

// =============================================================================
// MockClock - Testable time abstraction
// =============================================================================

// MockClock implements clock.Clock and clock.TimeSource for testing. Time only
// moves when the test calls Advance, so animation runs can be stepped one
// tick at a time.
type MockClock struct {
	mu           sync.Mutex
	now          time.Time
	pendingFuncs []pendingFunc
}

type pendingFunc struct {
	executeAt time.Time
	fn        func()
	stopped   bool
}

// MockTimer implements clock.Timer for testing.
type MockTimer struct {
	clock *MockClock
	index int
}

// Compile-time assertions
var (
	_ clock.Clock      = (*MockClock)(nil)
	_ clock.TimeSource = (*MockClock)(nil)
)

// NewMockClock creates a new MockClock with the current time as initial value.
func NewMockClock() *MockClock {
	return &MockClock{
		now: time.Now(),
	}
}

// NewMockClockAt creates a new MockClock with a specific initial time.
func NewMockClockAt(t time.Time) *MockClock {
	return &MockClock{
		now: t,
	}
}

// Now returns the mock's current time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// SetNow sets the mock's current time without triggering pending functions.
func (m *MockClock) SetNow(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// AfterFunc schedules f to be called after duration d.
// Returns a Timer that can be used to cancel the call.
func (m *MockClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	executeAt := m.now.Add(d)
	index := len(m.pendingFuncs)
	m.pendingFuncs = append(m.pendingFuncs, pendingFunc{
		executeAt: executeAt,
		fn:        f,
	})

	return &MockTimer{clock: m, index: index}
}

// Delay blocks until Advance moves mock time past now+d, or ctx is done.
func (m *MockClock) Delay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	fired := make(chan struct{})
	t := m.AfterFunc(d, func() { close(fired) })

	select {
	case <-fired:
		return nil
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	}
}

// Advance moves time forward by the given duration and executes any functions
// whose scheduled time has passed. Returns the number of functions executed.
func (m *MockClock) Advance(d time.Duration) int {
	m.mu.Lock()
	newTime := m.now.Add(d)
	m.now = newTime

	var toExecute []func()
	for i := range m.pendingFuncs {
		pf := &m.pendingFuncs[i]
		if !pf.stopped && !pf.executeAt.After(newTime) {
			toExecute = append(toExecute, pf.fn)
			pf.stopped = true // Mark as executed
		}
	}
	m.mu.Unlock()

	// Execute outside the lock to avoid deadlocks
	for _, fn := range toExecute {
		fn()
	}
	return len(toExecute)
}

// FireAll immediately executes all pending scheduled functions, regardless of
// their scheduled time.
func (m *MockClock) FireAll() int {
	m.mu.Lock()
	var toExecute []func()
	for i := range m.pendingFuncs {
		pf := &m.pendingFuncs[i]
		if !pf.stopped {
			toExecute = append(toExecute, pf.fn)
			pf.stopped = true
		}
	}
	m.mu.Unlock()

	for _, fn := range toExecute {
		fn()
	}
	return len(toExecute)
}

// PendingCount returns the number of scheduled functions that haven't been
// executed or stopped.
func (m *MockClock) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, pf := range m.pendingFuncs {
		if !pf.stopped {
			count++
		}
	}
	return count
}

// BlockUntil waits, in real time, until at least n functions are pending.
// It reports false if that doesn't happen within two seconds. Tests use it to
// wait for a goroutine to park in Delay before calling Advance.
func (m *MockClock) BlockUntil(n int) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.PendingCount() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

// Reset clears all pending scheduled functions and resets time to now.
func (m *MockClock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingFuncs = nil
	m.now = time.Now()
}

// Stop prevents the timer from firing. Returns true if the timer was stopped,
// false if it had already fired or been stopped.
func (t *MockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.index < len(t.clock.pendingFuncs) && !t.clock.pendingFuncs[t.index].stopped {
		t.clock.pendingFuncs[t.index].stopped = true
		return true
	}
	return false
}

// =============================================================================
// MockEventBus - Mock for eventbus.Publisher
// =============================================================================

// MockEventBus provides a simple in-memory event bus for testing.
// It captures all published events and allows synchronous subscription.
type MockEventBus struct {
	mu              sync.Mutex
	PublishedEvents []domain.Event
	Subscribers     map[domain.EventType][]func(domain.Event)
	// PublishErr, when set, is returned by Publish after recording the event.
	PublishErr error
}

// Compile-time assertion that MockEventBus implements eventbus.Publisher
var _ eventbus.Publisher = (*MockEventBus)(nil)

// NewMockEventBus creates a new mock event bus.
func NewMockEventBus() *MockEventBus {
	return &MockEventBus{
		Subscribers: make(map[domain.EventType][]func(domain.Event)),
	}
}

// Publish stores the event and notifies subscribers synchronously.
func (m *MockEventBus) Publish(event domain.Event) error {
	m.mu.Lock()
	m.PublishedEvents = append(m.PublishedEvents, event)
	subscribers := m.Subscribers[event.EventType]
	err := m.PublishErr
	m.mu.Unlock()

	// Notify subscribers synchronously for deterministic testing
	for _, handler := range subscribers {
		handler(event)
	}
	return err
}

// Subscribe registers a handler for the given event type.
func (m *MockEventBus) Subscribe(eventType domain.EventType, handler func(domain.Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Subscribers[eventType] = append(m.Subscribers[eventType], handler)
}

// GetEvents returns all published events of a given type.
func (m *MockEventBus) GetEvents(eventType domain.EventType) []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Event
	for _, e := range m.PublishedEvents {
		if e.EventType == eventType {
			result = append(result, e)
		}
	}
	return result
}

// GetAllEvents returns all published events.
func (m *MockEventBus) GetAllEvents() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]domain.Event, len(m.PublishedEvents))
	copy(result, m.PublishedEvents)
	return result
}

// Reset clears all published events and subscribers.
func (m *MockEventBus) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishedEvents = nil
	m.Subscribers = make(map[domain.EventType][]func(domain.Event))
}

// EventCount returns the number of events of a given type.
func (m *MockEventBus) EventCount(eventType domain.EventType) int {
	return len(m.GetEvents(eventType))
}

// LastEvent returns the most recently published event, or nil if none.
func (m *MockEventBus) LastEvent() *domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.PublishedEvents) == 0 {
		return nil
	}
	e := m.PublishedEvents[len(m.PublishedEvents)-1]
	return &e
}
