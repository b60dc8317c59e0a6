package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mescon/motion/internal/domain"
)

// ErrNotFound is returned when a row addressed by ID does not exist.
var ErrNotFound = errors.New("record not found")

// MotionRecord is the stored form of a motion descriptor.
type MotionRecord struct {
	ID         string
	Name       string
	Initial    float64
	Target     float64
	DurationMs int64
	Easing     string
	CreatedAt  time.Time
}

// ScheduleRecord is a cron expression that starts a motion.
type ScheduleRecord struct {
	ID             int64
	MotionID       string
	CronExpression string
	Enabled        bool
	CreatedAt      time.Time
}

// SaveMotion inserts or replaces a motion descriptor.
func (r *Repository) SaveMotion(m MotionRecord) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := ExecWithRetry(r.DB, `
		INSERT INTO motions (id, name, initial, target, duration_ms, easing, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			initial = excluded.initial,
			target = excluded.target,
			duration_ms = excluded.duration_ms,
			easing = excluded.easing
	`, m.ID, m.Name, m.Initial, m.Target, m.DurationMs, m.Easing, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save motion %s: %w", m.ID, err)
	}
	return nil
}

// DeleteMotion removes a motion and, through the foreign key, its schedules.
func (r *Repository) DeleteMotion(id string) error {
	res, err := ExecWithRetry(r.DB, "DELETE FROM motions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete motion %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadMotions returns every stored motion, oldest first.
func (r *Repository) LoadMotions() ([]MotionRecord, error) {
	rows, err := QueryWithRetry(r.DB, `
		SELECT id, name, initial, target, duration_ms, easing, created_at
		FROM motions ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load motions: %w", err)
	}
	defer rows.Close()

	var out []MotionRecord
	for rows.Next() {
		var m MotionRecord
		if err := rows.Scan(&m.ID, &m.Name, &m.Initial, &m.Target, &m.DurationMs, &m.Easing, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan motion: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveSchedule stores a schedule and returns its ID.
func (r *Repository) SaveSchedule(motionID, cronExpr string) (int64, error) {
	res, err := ExecWithRetry(r.DB, `
		INSERT INTO motion_schedules (motion_id, cron_expression, enabled, created_at)
		VALUES (?, ?, 1, ?)
	`, motionID, cronExpr, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to save schedule for motion %s: %w", motionID, err)
	}
	return res.LastInsertId()
}

// DeleteSchedule removes a schedule by ID.
func (r *Repository) DeleteSchedule(id int64) error {
	res, err := ExecWithRetry(r.DB, "DELETE FROM motion_schedules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadSchedules returns all enabled schedules.
func (r *Repository) LoadSchedules() ([]ScheduleRecord, error) {
	rows, err := QueryWithRetry(r.DB, `
		SELECT id, motion_id, cron_expression, enabled, created_at
		FROM motion_schedules WHERE enabled = 1 ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedules: %w", err)
	}
	defer rows.Close()

	var out []ScheduleRecord
	for rows.Next() {
		var s ScheduleRecord
		if err := rows.Scan(&s.ID, &s.MotionID, &s.CronExpression, &s.Enabled, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecentEvents returns up to limit journal events for one aggregate, newest first.
func (r *Repository) RecentEvents(aggregateID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := QueryWithRetry(r.DB, `
		SELECT id, aggregate_type, aggregate_id, event_type, event_data, event_version, created_at, user_id
		FROM events WHERE aggregate_id = ? ORDER BY id DESC LIMIT ?
	`, aggregateID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		var data string
		var userID sql.NullString
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &data, &e.EventVersion, &e.CreatedAt, &userID); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &e.EventData); err != nil {
			return nil, fmt.Errorf("failed to decode event %d: %w", e.ID, err)
		}
		e.UserID = userID.String
		events = append(events, e)
	}
	return events, rows.Err()
}
