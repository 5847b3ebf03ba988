// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Opens the database, creates the schema, and applies versioned migrations

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// schemaVersion is the version createSchema produces.
const schemaVersion = 2

// Options configures NewSQLiteStore
type Options struct {
	Logger       *slog.Logger
	PrintSQL     bool // log every statement at debug level
	RunMigration bool // upgrade an outdated schema instead of refusing to start
}

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db       *sql.DB
	logger   *slog.Logger
	printSQL bool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string, opts Options) (*SQLiteStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps :memory: databases and WAL writers consistent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:       db,
		logger:   logger,
		printSQL: opts.PrintSQL,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(opts.RunMigration); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	var existing int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'conversations'`).Scan(&existing)
	if err != nil {
		return fmt.Errorf("inspecting schema: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			is_active     INTEGER NOT NULL DEFAULT 1,
			is_superuser  INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversations (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL UNIQUE,
			type            TEXT NOT NULL,
			title           TEXT,
			user_id         TEXT NOT NULL,
			is_valid        INTEGER NOT NULL DEFAULT 1,
			model           TEXT,
			create_time     TEXT NOT NULL,
			update_time     TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id),
			CHECK (type IN ('rev', 'api'))
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id);
		CREATE INDEX IF NOT EXISTS idx_conversations_type ON conversations(type);

		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&count); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if count == 0 {
		// Only a conversations table created just now is known to be current.
		// One that predates schema_version is treated as version 1.
		version := schemaVersion
		if existing > 0 {
			version = 1
		}
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("recording schema version: %w", err)
		}
	}
	return nil
}

// runMigrations brings a database created by an older release up to
// schemaVersion. Without allow it only reports that an upgrade is needed.
func (s *SQLiteStore) runMigrations(allow bool) error {
	var version int
	if err := s.db.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}
	if !allow {
		return fmt.Errorf("%w: at version %d, want %d (set data.run_migration to upgrade)", ErrSchemaOutdated, version, schemaVersion)
	}

	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		version int
		table   string
		column  string
		apply   string
	}{
		{
			version: 2,
			table:   "conversations",
			column:  "model",
			apply:   `ALTER TABLE conversations ADD COLUMN model TEXT`,
		},
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&exists)
		if err != nil {
			if _, err := s.db.Exec(m.apply); err != nil {
				return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
			}
			s.logger.Info("applied migration", "column", m.column, "table", m.table)
		}
	}

	if _, err := s.db.Exec(`UPDATE schema_version SET version = ?`, schemaVersion); err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}
	s.logger.Info("database migrated", "from", version, "to", schemaVersion)
	return nil
}

// Ping verifies the database connection is usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// exec runs a statement, logging it first when print_sql is on.
func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	s.logSQL(query, args)
	return s.db.ExecContext(ctx, query, args...)
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	s.logSQL(query, args)
	return s.db.QueryContext(ctx, query, args...)
}

func (s *SQLiteStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	s.logSQL(query, args)
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *SQLiteStore) logSQL(query string, args []any) {
	if !s.printSQL {
		return
	}
	s.logger.Debug("sql", "query", strings.Join(strings.Fields(query), " "), "args", args)
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// nullString returns nil for empty strings so optional columns stay NULL
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// timeLayout keeps a fixed fractional width so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(column, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", column, err)
	}
	return t, nil
}
