package db

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Register pure-Go SQLite driver for database/sql

	"github.com/mescon/motion/internal/logger"
)

// MaxRetries is the number of times to retry a database operation on SQLITE_BUSY
const MaxRetries = 5

// RetryDelay is the base delay between retries (increases exponentially)
const RetryDelay = 100 * time.Millisecond

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Repository provides database access methods for the application.
type Repository struct {
	DB *sql.DB
}

// NewRepository creates a new Repository with the database at the given path.
func NewRepository(dbPath string) (*Repository, error) {
	// Ensure directory exists with restricted permissions (owner only)
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Connection-scoped pragmas go in the DSN so every pooled connection gets them
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(30000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode allows multiple concurrent readers + 1 writer
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := configureSQLite(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	repo := &Repository{DB: db}
	if err := repo.runMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := repo.checkIntegrity(); err != nil {
		logger.Errorf("Warning: database integrity check failed: %v", err)
		// Non-fatal but logged - database may need attention
	}

	return repo, nil
}

// configureSQLite sets SQLite pragmas for reliability and performance
func configureSQLite(db *sql.DB) error {
	criticalPragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=30000",
	}

	for _, pragma := range criticalPragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set critical pragma %s: %w", pragma, err)
		}
	}

	// Non-critical pragmas - log failures but continue
	optionalPragmas := []string{
		"PRAGMA synchronous=NORMAL",
		"PRAGMA auto_vacuum=INCREMENTAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA cache_size=-4000",
	}

	for _, pragma := range optionalPragmas {
		if _, err := db.Exec(pragma); err != nil {
			logger.Debugf("Failed to set optional pragma %s: %v", pragma, err)
		}
	}

	return nil
}

// checkIntegrity runs a quick integrity check on the database
func (r *Repository) checkIntegrity() error {
	var result string
	err := r.DB.QueryRow("PRAGMA quick_check").Scan(&result)
	if err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	logger.Debugf("✓ Database integrity check passed")
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.DB.Close()
}

// GracefulClose checkpoints the WAL into the main database file and closes
// the connection. Call it on application shutdown.
func (r *Repository) GracefulClose() error {
	logger.Infof("Database: initiating graceful shutdown...")

	if _, err := r.DB.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		logger.Warnf("Shutdown WAL checkpoint failed: %v", err)
	}

	if err := r.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	logger.Infof("✓ Database shutdown complete")
	return nil
}

// RunMaintenance prunes journal events older than retentionDays (0 keeps
// everything), then vacuums and analyzes. Call it periodically.
func (r *Repository) RunMaintenance(retentionDays int) error {
	logger.Infof("Starting database maintenance...")

	if retentionDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
		result, err := ExecWithRetry(r.DB, "DELETE FROM events WHERE created_at < ?", cutoff)
		if err != nil {
			return fmt.Errorf("failed to prune old events: %w", err)
		}
		if deleted, _ := result.RowsAffected(); deleted > 0 {
			logger.Infof("Pruned %d old events", deleted)
		}
	}

	maintenanceOps := []struct {
		name        string
		sql         string
		warnOnError bool
	}{
		{"incremental vacuum", "PRAGMA incremental_vacuum", true},
		{"database analysis", "ANALYZE", true},
		{"WAL checkpoint", "PRAGMA wal_checkpoint(TRUNCATE)", false},
	}
	for _, op := range maintenanceOps {
		if _, err := r.DB.Exec(op.sql); err != nil {
			if op.warnOnError {
				logger.Errorf("Failed to run %s: %v", op.name, err)
			} else {
				logger.Debugf("%s failed (might not be applicable): %v", op.name, err)
			}
		}
	}

	logger.Infof("✓ Database maintenance completed")
	return nil
}

// GetDatabaseStats returns size and row counts for the health endpoint.
func (r *Repository) GetDatabaseStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var pageCount, pageSize int64
	if err := r.DB.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, fmt.Errorf("failed to get page_count: %w", err)
	}
	if err := r.DB.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, fmt.Errorf("failed to get page_size: %w", err)
	}
	stats["size_bytes"] = pageCount * pageSize

	// Security: table names are hardcoded in this slice, not from user input
	tables := []string{"events", "motions", "motion_schedules"}
	tableCounts := make(map[string]int64)
	for _, table := range tables {
		var count int64
		if err := r.DB.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err == nil { // NOSONAR - table name from hardcoded slice
			tableCounts[table] = count
		}
	}
	stats["table_counts"] = tableCounts

	var journalMode string
	if err := r.DB.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return nil, fmt.Errorf("failed to get journal_mode: %w", err)
	}
	stats["journal_mode"] = journalMode

	return stats, nil
}

// createMigrationsTable ensures the schema_migrations table exists.
func (r *Repository) createMigrationsTable() error {
	_, err := r.DB.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

// getCurrentMigrationVersion returns the highest applied migration version.
func (r *Repository) getCurrentMigrationVersion() (int, error) {
	var version int
	err := r.DB.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current migration version: %w", err)
	}
	return version, nil
}

// getMigrationFiles returns sorted SQL migration files from the embedded filesystem.
func getMigrationFiles() ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// parseMigrationVersion extracts the version number from a migration filename.
func parseMigrationVersion(file string) (int, bool) {
	var version int
	if _, err := fmt.Sscanf(file, "%d_", &version); err != nil {
		return 0, false
	}
	return version, true
}

// applyMigration executes a single migration file within a transaction.
func (r *Repository) applyMigration(file string, version int) error {
	content, err := migrationsFS.ReadFile("migrations/" + file)
	if err != nil {
		return fmt.Errorf("failed to read migration file %s: %w", file, err)
	}

	tx, err := r.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.Exec(string(content)); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", file, err)
	}

	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("failed to record migration version %s: %w", file, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", file, err)
	}
	tx = nil // prevent deferred rollback after successful commit
	return nil
}

func (r *Repository) runMigrations() error {
	if err := r.createMigrationsTable(); err != nil {
		return err
	}

	currentVersion, err := r.getCurrentMigrationVersion()
	if err != nil {
		return err
	}

	migrationFiles, err := getMigrationFiles()
	if err != nil {
		return err
	}
	logger.Debugf("Found %d embedded migration files", len(migrationFiles))

	for _, file := range migrationFiles {
		version, ok := parseMigrationVersion(file)
		if !ok {
			logger.Errorf("Skipping invalid migration file: %s", file)
			continue
		}

		if version <= currentVersion {
			continue
		}

		logger.Infof("Applying migration: %s", file)
		if err := r.applyMigration(file, version); err != nil {
			return err
		}
	}

	return nil
}
