package testutil

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/mescon/motion/internal/db"
	"github.com/mescon/motion/internal/domain"
	_ "modernc.org/sqlite"
)

// NewTestRepository creates a migrated database in a temporary directory.
// It is closed automatically when the test ends.
func NewTestRepository(t testing.TB) *db.Repository {
	t.Helper()
	repo, err := db.NewRepository(filepath.Join(t.TempDir(), "motion.db"))
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// SeedEvent inserts a single event into the test database.
func SeedEvent(sqlDB *sql.DB, event domain.Event) (int64, error) {
	eventDataJSON, err := json.Marshal(event.EventData)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event data: %w", err)
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	// The bus stores UTC; mixed zones would break created_at comparisons
	event.CreatedAt = event.CreatedAt.UTC()
	if event.EventVersion == 0 {
		event.EventVersion = 1
	}

	result, err := sqlDB.Exec(`
		INSERT INTO events (aggregate_type, aggregate_id, event_type, event_data, event_version, created_at, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.AggregateType, event.AggregateID, event.EventType, eventDataJSON, event.EventVersion, event.CreatedAt, event.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted ID: %w", err)
	}
	return id, nil
}

// SeedEvents inserts multiple events into the test database.
func SeedEvents(sqlDB *sql.DB, events []domain.Event) error {
	for _, event := range events {
		if _, err := SeedEvent(sqlDB, event); err != nil {
			return err
		}
	}
	return nil
}

// CountEventsByType counts events of a given type.
func CountEventsByType(sqlDB *sql.DB, eventType domain.EventType) (int, error) {
	var count int
	err := sqlDB.QueryRow("SELECT COUNT(*) FROM events WHERE event_type = ?", eventType).Scan(&count)
	return count, err
}
