package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mescon/motion/internal/logger"
)

// RetryPolicy controls how statements that hit a locked database are retried.
// The delay before attempt n+1 is BaseDelay << n.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

var (
	retryMu     sync.RWMutex
	retryPolicy = RetryPolicy{MaxRetries: MaxRetries, BaseDelay: RetryDelay}
)

// SetRetryPolicy replaces the policy used by ExecWithRetry and QueryWithRetry.
// Values below one attempt or a non-positive delay fall back to the defaults.
func SetRetryPolicy(p RetryPolicy) {
	if p.MaxRetries < 1 {
		p.MaxRetries = MaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = RetryDelay
	}
	retryMu.Lock()
	retryPolicy = p
	retryMu.Unlock()
}

// CurrentRetryPolicy returns the policy in effect.
func CurrentRetryPolicy() RetryPolicy {
	retryMu.RLock()
	defer retryMu.RUnlock()
	return retryPolicy
}

// ExecWithRetry executes a statement, retrying while SQLite reports the
// database busy or locked. The event bus journals every lifecycle event
// through here while REST handlers write motions, so the two contend.
func ExecWithRetry(db *sql.DB, query string, args ...interface{}) (sql.Result, error) {
	return withRetry(query, func() (sql.Result, error) {
		return db.Exec(query, args...)
	})
}

// QueryWithRetry is ExecWithRetry for statements that return rows.
func QueryWithRetry(db *sql.DB, query string, args ...interface{}) (*sql.Rows, error) {
	return withRetry(query, func() (*sql.Rows, error) {
		return db.Query(query, args...)
	})
}

func withRetry[T any](query string, fn func() (T, error)) (T, error) {
	p := CurrentRetryPolicy()
	var zero T
	var err error

	for attempt := 0; attempt < p.MaxRetries; attempt++ {
		var v T
		v, err = fn()
		if err == nil {
			return v, nil
		}
		if !isBusy(err) {
			return zero, err
		}

		if attempt < p.MaxRetries-1 {
			delay := p.BaseDelay * time.Duration(1<<attempt)
			logger.Debugf("Database busy on %s, retrying in %v (attempt %d/%d)",
				statementLabel(query), delay, attempt+1, p.MaxRetries)
			time.Sleep(delay)
		}
	}

	return zero, fmt.Errorf("%s: database busy after %d retries: %w", statementLabel(query), p.MaxRetries, err)
}

// isBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED, including
// their extended codes.
func isBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// statementLabel names a statement by verb and table for log lines, e.g.
// "insert events" or "delete motions".
func statementLabel(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "statement"
	}
	verb := strings.ToLower(fields[0])

	var marker string
	switch verb {
	case "insert", "replace":
		marker = "into"
	case "select", "delete":
		marker = "from"
	case "update":
		if len(fields) > 1 {
			return verb + " " + tableName(fields[1])
		}
		return verb
	default:
		return verb
	}
	for i, f := range fields[:len(fields)-1] {
		if strings.EqualFold(f, marker) {
			return verb + " " + tableName(fields[i+1])
		}
	}
	return verb
}

func tableName(tok string) string {
	if i := strings.IndexAny(tok, "(,;"); i >= 0 {
		tok = tok[:i]
	}
	return strings.ToLower(strings.Trim(tok, "`\"[]"))
}
