package domain

import (
	"time"
)

type EventType string

const (
	MotionCreated      EventType = "MotionCreated"
	MotionStarted      EventType = "MotionStarted"
	MotionStartIgnored EventType = "MotionStartIgnored" // Start() while already running
	MotionRestarted    EventType = "MotionRestarted"    // Start() while running under the restart policy
	MotionCompleted    EventType = "MotionCompleted"
	MotionRemoved      EventType = "MotionRemoved"
	NotificationSent   EventType = "NotificationSent"
	NotificationFailed EventType = "NotificationFailed"
)

// AggregateMotion is the aggregate type of every motion lifecycle event.
const AggregateMotion = "motion"

type Event struct {
	ID            int64                  `json:"id"`
	AggregateType string                 `json:"aggregate_type"`
	AggregateID   string                 `json:"aggregate_id"`
	EventType     EventType              `json:"event_type"`
	EventData     map[string]interface{} `json:"event_data"`
	EventVersion  int                    `json:"event_version"`
	CreatedAt     time.Time              `json:"created_at"`
	UserID        string                 `json:"user_id,omitempty"`
}

// NewMotionEvent builds a motion lifecycle event for the given motion ID.
func NewMotionEvent(eventType EventType, motionID string, data map[string]interface{}) Event {
	if data == nil {
		data = map[string]interface{}{}
	}
	return Event{
		AggregateType: AggregateMotion,
		AggregateID:   motionID,
		EventType:     eventType,
		EventData:     data,
	}
}

// =============================================================================
// Type-safe event data accessors
// These helpers provide compile-time safety when extracting data from events.
// =============================================================================

// GetString safely extracts a string field from EventData.
// Returns the value and true if found and is a string, otherwise empty string and false.
func (e *Event) GetString(key string) (string, bool) {
	if e.EventData == nil {
		return "", false
	}
	v, ok := e.EventData[key].(string)
	return v, ok
}

// GetStringOr extracts a string field or returns the default value.
func (e *Event) GetStringOr(key, defaultVal string) string {
	if v, ok := e.GetString(key); ok {
		return v
	}
	return defaultVal
}

// GetInt64 safely extracts an int64 field from EventData.
// Handles both int64 and float64 (JSON unmarshaling produces float64).
func (e *Event) GetInt64(key string) (int64, bool) {
	if e.EventData == nil {
		return 0, false
	}
	switch v := e.EventData[key].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case uint64:
		return int64(v), true
	default:
		return 0, false
	}
}

// GetInt64Or extracts an int64 field or returns the default value.
func (e *Event) GetInt64Or(key string, defaultVal int64) int64 {
	if v, ok := e.GetInt64(key); ok {
		return v
	}
	return defaultVal
}

// GetFloat64 safely extracts a float64 field from EventData.
func (e *Event) GetFloat64(key string) (float64, bool) {
	if e.EventData == nil {
		return 0, false
	}
	switch v := e.EventData[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// GetFloat64Or extracts a float64 field or returns the default value.
func (e *Event) GetFloat64Or(key string, defaultVal float64) float64 {
	if v, ok := e.GetFloat64(key); ok {
		return v
	}
	return defaultVal
}

// GetBool safely extracts a bool field from EventData.
func (e *Event) GetBool(key string) (bool, bool) {
	if e.EventData == nil {
		return false, false
	}
	v, ok := e.EventData[key].(bool)
	return v, ok
}

// GetBoolOr extracts a bool field or returns the default value.
func (e *Event) GetBoolOr(key string, defaultVal bool) bool {
	if v, ok := e.GetBool(key); ok {
		return v
	}
	return defaultVal
}

// =============================================================================
// Typed event data structures for common events
// =============================================================================

// RunEventData contains data for MotionStarted and MotionCompleted events.
type RunEventData struct {
	From      float64 `json:"from"`
	To        float64 `json:"to"`
	Value     float64 `json:"value"`
	Run       int64   `json:"run"`
	Ticks     int64   `json:"ticks,omitempty"`
	ElapsedMs int64   `json:"elapsed_ms,omitempty"`
	Finished  bool    `json:"finished,omitempty"` // ended early by Finish()
}

// Map converts the data into the generic EventData form.
func (d RunEventData) Map() map[string]interface{} {
	return map[string]interface{}{
		"from":       d.From,
		"to":         d.To,
		"value":      d.Value,
		"run":        d.Run,
		"ticks":      d.Ticks,
		"elapsed_ms": d.ElapsedMs,
		"finished":   d.Finished,
	}
}

// ParseRunEventData extracts typed run data from an event.
func (e *Event) ParseRunEventData() (RunEventData, bool) {
	to, ok := e.GetFloat64("to")
	if !ok {
		return RunEventData{}, false
	}
	return RunEventData{
		From:      e.GetFloat64Or("from", 0),
		To:        to,
		Value:     e.GetFloat64Or("value", 0),
		Run:       e.GetInt64Or("run", 0),
		Ticks:     e.GetInt64Or("ticks", 0),
		ElapsedMs: e.GetInt64Or("elapsed_ms", 0),
		Finished:  e.GetBoolOr("finished", false),
	}, true
}
