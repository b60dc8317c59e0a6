package eventbus

import (
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mescon/motion/internal/domain"
	_ "modernc.org/sqlite"
)

// newTestDB creates an in-memory SQLite database with the events table.
// This is a local helper to avoid import cycles with testutil.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	// Named shared-cache database so each test gets its own schema
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		t.Fatalf("Failed to set pragma: %v", err)
	}

	_, err = db.Exec(`
		CREATE TABLE events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			aggregate_type TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			event_data JSON NOT NULL,
			event_version INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			user_id TEXT
		)
	`)
	if err != nil {
		t.Fatalf("Failed to create events table: %v", err)
	}

	return db
}

// getEventsByAggregate retrieves all events for a given aggregate ID.
func getEventsByAggregate(t *testing.T, db *sql.DB, aggregateID string) []domain.Event {
	t.Helper()
	rows, err := db.Query(`
		SELECT id, aggregate_type, aggregate_id, event_type, event_data, event_version, created_at, user_id
		FROM events WHERE aggregate_id = ? ORDER BY id ASC
	`, aggregateID)
	if err != nil {
		t.Fatalf("Failed to query events: %v", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var eventDataJSON string
		var userID sql.NullString
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &eventDataJSON, &e.EventVersion, &e.CreatedAt, &userID); err != nil {
			t.Fatalf("Failed to scan event: %v", err)
		}
		if err := json.Unmarshal([]byte(eventDataJSON), &e.EventData); err != nil {
			t.Fatalf("Failed to unmarshal event data: %v", err)
		}
		if userID.Valid {
			e.UserID = userID.String
		}
		events = append(events, e)
	}
	return events
}

// countEventsByType counts events of a given type.
func countEventsByType(t *testing.T, db *sql.DB, eventType domain.EventType) int {
	t.Helper()
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM events WHERE event_type = ?", eventType).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to count events: %v", err)
	}
	return count
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestEventBus_PublishAndSubscribe(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	eb := NewEventBus(db)
	defer eb.Shutdown()

	var received []domain.Event
	var mu sync.Mutex
	eb.Subscribe(domain.MotionCompleted, func(event domain.Event) {
		mu.Lock()
		received = append(received, event)
		mu.Unlock()
	})

	data := domain.RunEventData{From: 0, To: 100, Value: 100, Run: 1}
	if err := eb.Publish(domain.NewMotionEvent(domain.MotionCompleted, "width", data.Map())); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if received[0].ID == 0 {
		t.Error("delivered event should carry the journal ID")
	}
	if v, _ := received[0].GetFloat64("to"); v != 100 {
		t.Errorf("delivered event has to=%v, want 100", v)
	}
}

func TestEventBus_PublishPersistsToDatabase(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	eb := NewEventBus(db)
	defer eb.Shutdown()

	err := eb.Publish(domain.NewMotionEvent(domain.MotionStarted, "persist-test", map[string]interface{}{"run": 1}))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	events := getEventsByAggregate(t, db, "persist-test")
	if len(events) != 1 {
		t.Fatalf("Expected 1 event in database, got %d", len(events))
	}
	if events[0].EventType != domain.MotionStarted {
		t.Errorf("Event type = %v, want %v", events[0].EventType, domain.MotionStarted)
	}
	if events[0].AggregateType != domain.AggregateMotion {
		t.Errorf("AggregateType = %q, want %q", events[0].AggregateType, domain.AggregateMotion)
	}
	if events[0].EventVersion != 1 {
		t.Errorf("EventVersion = %d, want 1", events[0].EventVersion)
	}
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	eb := NewEventBus(nil)
	defer eb.Shutdown()

	var count1, count2 int
	var mu sync.Mutex
	eb.Subscribe(domain.MotionStarted, func(domain.Event) { mu.Lock(); count1++; mu.Unlock() })
	eb.Subscribe(domain.MotionStarted, func(domain.Event) { mu.Lock(); count2++; mu.Unlock() })

	if err := eb.Publish(domain.NewMotionEvent(domain.MotionStarted, "multi", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count1 == 1 && count2 == 1
	})
}

func TestEventBus_UnsubscribedEventType(t *testing.T) {
	eb := NewEventBus(nil)
	defer eb.Shutdown()

	var started, completed int
	var mu sync.Mutex
	eb.Subscribe(domain.MotionStarted, func(domain.Event) { mu.Lock(); started++; mu.Unlock() })
	eb.Subscribe(domain.MotionCompleted, func(domain.Event) { mu.Lock(); completed++; mu.Unlock() })

	if err := eb.Publish(domain.NewMotionEvent(domain.MotionStarted, "filter", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return started == 1
	})
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if completed != 0 {
		t.Errorf("Expected 0 completed events, got %d", completed)
	}
}

// TestEventBus_InMemory checks a nil database still delivers events.
func TestEventBus_InMemory(t *testing.T) {
	eb := NewEventBus(nil)
	defer eb.Shutdown()

	got := make(chan domain.Event, 1)
	eb.Subscribe(domain.MotionRemoved, func(e domain.Event) { got <- e })

	if err := eb.Publish(domain.NewMotionEvent(domain.MotionRemoved, "mem", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case e := <-got:
		if e.AggregateID != "mem" {
			t.Errorf("AggregateID = %q, want mem", e.AggregateID)
		}
		if e.CreatedAt.IsZero() {
			t.Error("CreatedAt should be defaulted")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestEventBus_ConcurrentPublish(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	eb := NewEventBus(db)
	defer eb.Shutdown()

	const numEvents = 50
	var wg sync.WaitGroup
	wg.Add(numEvents)
	for i := 0; i < numEvents; i++ {
		go func(n int) {
			defer wg.Done()
			if err := eb.Publish(domain.NewMotionEvent(domain.MotionStarted, "concurrent", map[string]interface{}{"run": n})); err != nil {
				t.Errorf("Publish failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if count := countEventsByType(t, db, domain.MotionStarted); count != numEvents {
		t.Errorf("Expected %d events in database, got %d", numEvents, count)
	}
}

func TestEventBus_Publish_MarshalError(t *testing.T) {
	eb := NewEventBus(nil)
	defer eb.Shutdown()

	err := eb.Publish(domain.NewMotionEvent(domain.MotionStarted, "marshal", map[string]interface{}{
		"unmarshalable": func() {},
	}))
	if err == nil || !strings.Contains(err.Error(), "marshal") {
		t.Errorf("Expected error about marshaling, got: %v", err)
	}
}

func TestEventBus_Publish_DatabaseError(t *testing.T) {
	db := newTestDB(t)
	eb := NewEventBus(db)
	defer eb.Shutdown()

	db.Close()

	err := eb.Publish(domain.NewMotionEvent(domain.MotionStarted, "db-error", nil))
	if err == nil || !strings.Contains(err.Error(), "persist") {
		t.Errorf("Expected error about persisting event, got: %v", err)
	}
}

// TestEventBus_BufferFull_DropsEvent checks a stuck subscriber never blocks
// the publisher, and the journal still keeps every event.
func TestEventBus_BufferFull_DropsEvent(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	eb := NewEventBus(db)
	defer eb.Shutdown()

	blocker := make(chan struct{})
	defer close(blocker)
	started := make(chan struct{}, 1)
	eb.Subscribe(domain.MotionCompleted, func(domain.Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-blocker
	})

	if err := eb.Publish(domain.NewMotionEvent(domain.MotionCompleted, "buffer", nil)); err != nil {
		t.Fatalf("First publish failed: %v", err)
	}
	<-started

	done := make(chan struct{})
	go func() {
		for i := 0; i < 150; i++ {
			_ = eb.Publish(domain.NewMotionEvent(domain.MotionCompleted, "buffer", nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	if count := countEventsByType(t, db, domain.MotionCompleted); count != 151 {
		t.Errorf("Expected 151 events in database, got %d", count)
	}
}

func TestEventBus_PresetCreatedAtAndUser(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	eb := NewEventBus(db)
	defer eb.Shutdown()

	presetTime := time.Date(2023, 1, 15, 10, 30, 0, 0, time.UTC)
	event := domain.NewMotionEvent(domain.MotionCreated, "preset", nil)
	event.CreatedAt = presetTime
	event.EventVersion = 5
	event.UserID = "api"

	if err := eb.Publish(event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	events := getEventsByAggregate(t, db, "preset")
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].EventVersion != 5 {
		t.Errorf("EventVersion = %d, want 5", events[0].EventVersion)
	}
	if events[0].CreatedAt.Sub(presetTime).Abs() > time.Second {
		t.Errorf("CreatedAt = %v, want approximately %v", events[0].CreatedAt, presetTime)
	}
	if events[0].UserID != "api" {
		t.Errorf("UserID = %q, want api", events[0].UserID)
	}
}

func TestEventBus_ShutdownTwice(t *testing.T) {
	eb := NewEventBus(nil)
	eb.Subscribe(domain.MotionStarted, func(domain.Event) {})

	done := make(chan struct{})
	go func() {
		eb.Shutdown()
		eb.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown timed out")
	}
}
