package eventbus

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mescon/motion/internal/db"
	"github.com/mescon/motion/internal/domain"
	"github.com/mescon/motion/internal/logger"
)

// Publisher defines the interface for publishing events.
// This interface enables testing with mock implementations.
type Publisher interface {
	Publish(event domain.Event) error
	Subscribe(eventType domain.EventType, handler func(domain.Event))
}

// Ensure EventBus implements Publisher
var _ Publisher = (*EventBus)(nil)

type EventBus struct {
	db          *sql.DB
	subscribers map[domain.EventType][]chan domain.Event
	mu          sync.RWMutex
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewEventBus creates a bus that journals every event to the events table of
// db before fanning it out. A nil db gives a purely in-memory bus.
func NewEventBus(db *sql.DB) *EventBus {
	return &EventBus{
		db:          db,
		subscribers: make(map[domain.EventType][]chan domain.Event),
		stopChan:    make(chan struct{}),
	}
}

func (eb *EventBus) Publish(event domain.Event) error {
	logger.Debugf("EventBus: Publishing event %s (AggregateID: %s)", event.EventType, event.AggregateID)

	eventDataJSON, err := json.Marshal(event.EventData)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC() // Use UTC for consistent SQLite date parsing
	}
	if event.EventVersion == 0 {
		event.EventVersion = 1
	}

	// 1. Store event in database (source of truth)
	if eb.db != nil {
		res, err := db.ExecWithRetry(eb.db, `
			INSERT INTO events (aggregate_type, aggregate_id, event_type, event_data, event_version, created_at, user_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, event.AggregateType, event.AggregateID, event.EventType, eventDataJSON, event.EventVersion, event.CreatedAt, event.UserID)
		if err != nil {
			return fmt.Errorf("failed to persist event: %w", err)
		}
		if id, err := res.LastInsertId(); err == nil {
			event.ID = id
		}
	}

	// 2. Publish to in-memory subscribers
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, ch := range eb.subscribers[event.EventType] {
		select {
		case ch <- event:
		default:
			// Non-blocking, drop if buffer full to prevent blocking the publisher
			logger.Warnf("EventBus: subscriber buffer full, dropping %s for %s", event.EventType, event.AggregateID)
		}
	}

	return nil
}

func (eb *EventBus) Subscribe(eventType domain.EventType, handler func(domain.Event)) {
	ch := make(chan domain.Event, 100)

	eb.mu.Lock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	eb.mu.Unlock()

	eb.wg.Add(1)
	go func() {
		defer eb.wg.Done()
		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return // Channel closed
				}
				handler(event)
			case <-eb.stopChan:
				return // Shutdown signal received
			}
		}
	}()
}

// Shutdown stops all subscriber goroutines and waits for them to finish.
// Calling it more than once is harmless.
func (eb *EventBus) Shutdown() {
	eb.stopOnce.Do(func() {
		close(eb.stopChan)
		eb.wg.Wait()
		logger.Infof("EventBus shutdown complete")
	})
}
