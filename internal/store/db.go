package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the single on-disk SQLite database. A single writer is
// assumed; concurrent readers are supported via WAL mode.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and applies
// any pending forward-only migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.migrate(0); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// LatestVersion returns the highest migration version known to this binary.
func LatestVersion() int {
	v := 0
	for _, m := range migrations {
		if m.Version > v {
			v = m.Version
		}
	}
	return v
}

// MigrateTo applies every pending migration up to and including target. A
// target of 0 applies everything pending, for the "db migrate" CLI command.
func (s *Store) MigrateTo(target int) error {
	return s.migrate(target)
}

// OpenNoMigrate opens the database without applying any migrations, for
// callers (the "db migrate" CLI command) that want explicit control over
// which schema version to stop at via MigrateTo.
func OpenNoMigrate(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// DB returns the underlying handle, for callers (the scheduler's job
// store, operator tooling) that need direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// migrate applies pending migrations in version order. target caps how far
// it goes; 0 means apply every migration currently known.
func (s *Store) migrate(target int) error {
	if _, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	description TEXT NOT NULL DEFAULT ''
);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := s.CurrentVersion()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if target > 0 && m.Version > target {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version, applied_at, description) VALUES (?, ?, ?)`,
			m.Version, time.Now().UTC(), m.Description); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
		slog.Info("store migration applied", "version", m.Version, "description", m.Description)
	}
	return nil
}

// CurrentVersion returns the highest applied migration version, or 0 if
// none have been applied.
func (s *Store) CurrentVersion() (int, error) {
	row := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`)
	var v int
	if err := row.Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// Health reports whether the store can currently serve a trivial query.
func (s *Store) Health() error {
	var one int
	if err := s.db.QueryRow(`SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("store: health check: %w", err)
	}
	return nil
}
