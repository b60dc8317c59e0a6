package db

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite" // Register pure-Go SQLite driver for database/sql
)

// testDBCounter ensures unique database names across parallel test runs
var testDBCounter atomic.Int64

// newTestDBForRetry creates an in-memory SQLite database with a minimal
// motions table. Each call creates a unique database.
func newTestDBForRetry() (*sql.DB, error) {
	dbName := fmt.Sprintf("file:retry_test_%d?mode=memory&cache=shared", testDBCounter.Add(1))
	db, err := sql.Open("sqlite", dbName)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE motions (
			id TEXT PRIMARY KEY,
			initial REAL NOT NULL,
			target REAL NOT NULL,
			duration_ms INTEGER NOT NULL
		)
	`)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func TestExecWithRetry_SuccessFirstAttempt(t *testing.T) {
	db, err := newTestDBForRetry()
	if err != nil {
		t.Fatalf("Failed to create test db: %v", err)
	}
	defer db.Close()

	result, err := ExecWithRetry(db, "INSERT INTO motions (id, initial, target, duration_ms) VALUES (?, ?, ?, ?)", "a", 0, 100, 1000)
	if err != nil {
		t.Fatalf("ExecWithRetry failed: %v", err)
	}
	if n, _ := result.RowsAffected(); n != 1 {
		t.Errorf("Expected 1 row affected, got %d", n)
	}
}

func TestExecWithRetry_UpdateAndDelete(t *testing.T) {
	db, err := newTestDBForRetry()
	if err != nil {
		t.Fatalf("Failed to create test db: %v", err)
	}
	defer db.Close()

	if _, err := ExecWithRetry(db, "INSERT INTO motions (id, initial, target, duration_ms) VALUES (?, ?, ?, ?)", "u", 0, 1, 800); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	result, err := ExecWithRetry(db, "UPDATE motions SET target = ? WHERE id = ?", 2, "u")
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if n, _ := result.RowsAffected(); n != 1 {
		t.Errorf("update affected %d rows, want 1", n)
	}

	result, err = ExecWithRetry(db, "DELETE FROM motions WHERE id = ?", "u")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if n, _ := result.RowsAffected(); n != 1 {
		t.Errorf("delete affected %d rows, want 1", n)
	}
}

// Non-busy errors are returned immediately without retrying.
func TestExecWithRetry_NonRetryableErrors(t *testing.T) {
	db, err := newTestDBForRetry()
	if err != nil {
		t.Fatalf("Failed to create test db: %v", err)
	}
	defer db.Close()

	tests := []struct {
		name  string
		query string
		args  []interface{}
	}{
		{"syntax error", "INSER INTO motions VALUES (?)", []interface{}{"x"}},
		{"missing table", "INSERT INTO nope (id) VALUES (?)", []interface{}{"x"}},
		{"not null violation", "INSERT INTO motions (id) VALUES (?)", []interface{}{"x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			_, err := ExecWithRetry(db, tt.query, tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if strings.Contains(err.Error(), "retries") {
				t.Errorf("error should not mention retries: %v", err)
			}
			if time.Since(start) >= RetryDelay {
				t.Errorf("non-busy error took %v, should not back off", time.Since(start))
			}
		})
	}
}

func TestExecWithRetry_ConstraintViolation(t *testing.T) {
	db, err := newTestDBForRetry()
	if err != nil {
		t.Fatalf("Failed to create test db: %v", err)
	}
	defer db.Close()

	q := "INSERT INTO motions (id, initial, target, duration_ms) VALUES (?, ?, ?, ?)"
	if _, err := ExecWithRetry(db, q, "dup", 0, 1, 1); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if _, err := ExecWithRetry(db, q, "dup", 0, 1, 1); err == nil {
		t.Error("expected a primary key violation")
	}
}

func TestQueryWithRetry_MultipleRows(t *testing.T) {
	db, err := newTestDBForRetry()
	if err != nil {
		t.Fatalf("Failed to create test db: %v", err)
	}
	defer db.Close()

	for i := 0; i < 3; i++ {
		if _, err := db.Exec("INSERT INTO motions (id, initial, target, duration_ms) VALUES (?, ?, ?, ?)", fmt.Sprintf("m%d", i), 0, 100, (i+1)*100); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	rows, err := QueryWithRetry(db, "SELECT duration_ms FROM motions WHERE target = ? ORDER BY duration_ms", 100)
	if err != nil {
		t.Fatalf("QueryWithRetry failed: %v", err)
	}
	defer rows.Close()

	var got []int
	for rows.Next() {
		var d int
		if err := rows.Scan(&d); err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		got = append(got, d)
	}
	if len(got) != 3 || got[0] != 100 || got[2] != 300 {
		t.Errorf("durations = %v, want [100 200 300]", got)
	}
}

func TestQueryWithRetry_EmptyResult(t *testing.T) {
	db, err := newTestDBForRetry()
	if err != nil {
		t.Fatalf("Failed to create test db: %v", err)
	}
	defer db.Close()

	rows, err := QueryWithRetry(db, "SELECT id FROM motions WHERE id = ?", "missing")
	if err != nil {
		t.Fatalf("QueryWithRetry failed: %v", err)
	}
	defer rows.Close()
	if rows.Next() {
		t.Error("expected no rows")
	}
}

func TestQueryWithRetry_SyntaxError(t *testing.T) {
	db, err := newTestDBForRetry()
	if err != nil {
		t.Fatalf("Failed to create test db: %v", err)
	}
	defer db.Close()

	if _, err := QueryWithRetry(db, "SELEC * FROM motions"); err == nil {
		t.Error("expected syntax error")
	}
}

func TestRetryConstants(t *testing.T) {
	if MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", MaxRetries)
	}
	if RetryDelay != 100*time.Millisecond {
		t.Errorf("RetryDelay = %v, want 100ms", RetryDelay)
	}
}

func TestExecWithRetry_ClosedDatabase(t *testing.T) {
	db, err := newTestDBForRetry()
	if err != nil {
		t.Fatalf("Failed to create test db: %v", err)
	}
	db.Close()

	_, err = ExecWithRetry(db, "DELETE FROM motions")
	if err == nil {
		t.Fatal("expected error on closed database")
	}
	if !errors.Is(err, sql.ErrConnDone) && !strings.Contains(err.Error(), "closed") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStatementLabel(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"INSERT INTO events (event_type, aggregate_id) VALUES (?, ?)", "insert events"},
		{"INSERT OR REPLACE INTO motions(id) VALUES (?)", "insert motions"},
		{"\n\t\tSELECT id, name FROM motions ORDER BY created_at", "select motions"},
		{"DELETE FROM motion_schedules WHERE id = ?", "delete motion_schedules"},
		{"UPDATE motions SET target = ? WHERE id = ?", "update motions"},
		{"VACUUM", "vacuum"},
		{"   ", "statement"},
	}
	for _, tt := range tests {
		if got := statementLabel(tt.query); got != tt.want {
			t.Errorf("statementLabel(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestIsBusy_Messages(t *testing.T) {
	if !isBusy(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Error("SQLITE_BUSY message should be busy")
	}
	if isBusy(errors.New("no such table: nope")) {
		t.Error("missing table should not be busy")
	}
}

func TestSetRetryPolicy_Defaults(t *testing.T) {
	prev := CurrentRetryPolicy()
	t.Cleanup(func() { SetRetryPolicy(prev) })

	SetRetryPolicy(RetryPolicy{MaxRetries: 3, BaseDelay: 10 * time.Millisecond})
	if p := CurrentRetryPolicy(); p.MaxRetries != 3 || p.BaseDelay != 10*time.Millisecond {
		t.Errorf("policy = %+v", p)
	}

	SetRetryPolicy(RetryPolicy{})
	if p := CurrentRetryPolicy(); p.MaxRetries != MaxRetries || p.BaseDelay != RetryDelay {
		t.Errorf("zero policy = %+v, want defaults", p)
	}
}

// lockedDB returns a second handle on a file database whose write lock is held
// by an open transaction, plus a func that commits it.
func lockedDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "locked.db")
	dsn := "file:" + path + "?_pragma=busy_timeout(0)"

	holder, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = holder.Close() })
	holder.SetMaxOpenConns(1)
	if _, err := holder.Exec("CREATE TABLE motions (id TEXT PRIMARY KEY)"); err != nil {
		t.Fatal(err)
	}

	tx, err := holder.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Exec("INSERT INTO motions (id) VALUES ('held')"); err != nil {
		t.Fatal(err)
	}

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = writer.Close() })
	writer.SetMaxOpenConns(1)

	var once sync.Once
	release := func() { once.Do(func() { _ = tx.Commit() }) }
	t.Cleanup(release)
	return writer, release
}

func TestExecWithRetry_GivesUpWhileLocked(t *testing.T) {
	prev := CurrentRetryPolicy()
	t.Cleanup(func() { SetRetryPolicy(prev) })
	SetRetryPolicy(RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond})

	writer, _ := lockedDB(t)

	_, err := ExecWithRetry(writer, "INSERT INTO motions (id) VALUES (?)", "blocked")
	if err == nil {
		t.Fatal("expected a busy error while the write lock is held")
	}
	if !strings.Contains(err.Error(), "insert motions: database busy after 3 retries") {
		t.Errorf("error = %v", err)
	}
	if !isBusy(err) {
		t.Errorf("wrapped error should still read as busy: %v", err)
	}
}

func TestExecWithRetry_SucceedsAfterLockReleased(t *testing.T) {
	prev := CurrentRetryPolicy()
	t.Cleanup(func() { SetRetryPolicy(prev) })
	SetRetryPolicy(RetryPolicy{MaxRetries: 10, BaseDelay: 5 * time.Millisecond})

	writer, release := lockedDB(t)
	time.AfterFunc(20*time.Millisecond, release)

	if _, err := ExecWithRetry(writer, "INSERT INTO motions (id) VALUES (?)", "late"); err != nil {
		t.Fatalf("ExecWithRetry should succeed once the lock is released: %v", err)
	}
}
