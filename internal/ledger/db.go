package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Migration represents a schema migration
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations are applied in order, each at most once
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
CREATE TABLE sessions (
	id TEXT PRIMARY KEY,
	dir TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	ended_at INTEGER,
	end_reason TEXT
);
CREATE TABLE chunks (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	file_path TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	written_at INTEGER NOT NULL,
	upload_status TEXT NOT NULL DEFAULT 'pending',
	upload_error TEXT,
	delivered_at INTEGER,
	PRIMARY KEY (session_id, chunk_index)
);
CREATE INDEX idx_chunks_status ON chunks(upload_status);`,
	},
	{
		Version: 2,
		Name:    "finalize_status",
		Up: `
ALTER TABLE sessions ADD COLUMN finalize_status TEXT;
ALTER TABLE sessions ADD COLUMN finalize_error TEXT;`,
	},
}

// Ledger is the SQLite-backed session and chunk record
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger database at path
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	// Writes arrive from many background tasks; one connection serializes
	// them instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping ledger: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	l := &Ledger{db: db}
	if err := l.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate ledger: %w", err)
	}

	return l, nil
}

// Close closes the database
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) migrate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := l.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return err
	}
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return err
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := l.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func (l *Ledger) applyMigration(ctx context.Context, m Migration) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range strings.Split(m.Up, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute statement: %w (statement: %s)", err, stmt)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.Version, m.Name); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
