package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migration upgrades a database to version.
type migration struct {
	version int
	name    string
	stmt    string
}

// migrations run in order against databases whose user_version is below
// each entry. schema.sql always runs first, so statements must tolerate the
// objects it already created.
var migrations = []migration{
	{1, "index nudges by rule", `
		CREATE INDEX IF NOT EXISTS idx_nudges_rule
		ON nudges(rule, displayed_at)`},
	{2, "index firings by subject", `
		CREATE INDEX IF NOT EXISTS idx_firings_subject
		ON firings(subject_id, fired_at)`},
	// Firings are per-session and never outlive a process, so the table is
	// rebuilt rather than copied.
	{3, "scope firing keys by subject", `
		DROP TABLE IF EXISTS firings;
		CREATE TABLE firings (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id  TEXT    NOT NULL,
			subject_id  TEXT    NOT NULL,
			dedup_key   TEXT    NOT NULL,
			rule        TEXT    NOT NULL,
			fired_at    INTEGER NOT NULL,
			seq         INTEGER NOT NULL,
			UNIQUE (session_id, subject_id, dedup_key)
		);
		CREATE INDEX idx_firings_session_seq ON firings (session_id, subject_id, seq);
		CREATE INDEX idx_firings_subject ON firings (subject_id, fired_at)`},
}

// currentSchemaVersion is the version of the last migration.
var currentSchemaVersion = migrations[len(migrations)-1].version

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// Store holds the firing ledger and nudge history.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path, applying pragmas, the schema
// and pending migrations. Opening an existing database is a no-op beyond
// that.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// PruneFirings deletes firing rows that belong to any session other than
// keep, returning how many were removed. Firings never carry over a restart,
// so older sessions are only dead weight. History is untouched.
func (s *Store) PruneFirings(ctx context.Context, keep string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM firings WHERE session_id != ?`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune firings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune firings: rows affected: %w", err)
	}
	return n, nil
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	for _, m := range migrations {
		if version >= m.version {
			continue
		}
		if _, err := db.Exec(m.stmt); err != nil {
			return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
		version = m.version
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
