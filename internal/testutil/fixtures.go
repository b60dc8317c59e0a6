package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/mescon/motion/internal/domain"
)

// EventOption is a functional option for configuring test events.
type EventOption func(*domain.Event)

// WithAggregateID sets a specific aggregate ID.
func WithAggregateID(id string) EventOption {
	return func(e *domain.Event) {
		e.AggregateID = id
	}
}

// WithCreatedAt sets the event creation time.
func WithCreatedAt(t time.Time) EventOption {
	return func(e *domain.Event) {
		e.CreatedAt = t
	}
}

// WithEventData merges additional data into EventData.
func WithEventData(data map[string]interface{}) EventOption {
	return func(e *domain.Event) {
		if e.EventData == nil {
			e.EventData = make(map[string]interface{})
		}
		for k, v := range data {
			e.EventData[k] = v
		}
	}
}

// NewStartedEvent creates a MotionStarted event for a fresh motion ID.
func NewStartedEvent(from, to float64, opts ...EventOption) domain.Event {
	data := domain.RunEventData{From: from, To: to, Value: from, Run: 1}
	e := domain.NewMotionEvent(domain.MotionStarted, uuid.New().String(), data.Map())
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// NewCompletedEvent creates a MotionCompleted event that ended on to.
func NewCompletedEvent(aggregateID string, to float64, ticks, elapsedMs int64) domain.Event {
	data := domain.RunEventData{To: to, Value: to, Run: 1, Ticks: ticks, ElapsedMs: elapsedMs}
	return domain.NewMotionEvent(domain.MotionCompleted, aggregateID, data.Map())
}

// RunFlow returns the events of one complete run in publish order.
func RunFlow(from, to float64) []domain.Event {
	started := NewStartedEvent(from, to)
	return []domain.Event{
		started,
		NewCompletedEvent(started.AggregateID, to, 10, 1000),
	}
}
