// Package healthstore persists upstream failure/cooldown bookkeeping
// in a local SQLite database, so a restart doesn't immediately retry a
// resolver that was mid-cooldown when the process stopped. This is the
// one piece of state in the system that survives a restart; the
// response cache itself stays in-memory only.
package healthstore

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database connection recording, per upstream
// tag, the timestamp of its most recent failure.
type Store struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// Open opens or creates a SQLite database at path and brings its
// schema up to date.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("healthstore: open %s: %w", path, err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("healthstore: migration source: %w", err)
	}

	dbDriver, err := sqlite.WithInstance(s.conn, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("healthstore: migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("healthstore: migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("healthstore: run migrations: %w", err)
	}
	return nil
}

// MarkFailed implements upstream.HealthStore: records tag's first
// observed failure timestamp, overwriting any prior record for tag.
func (s *Store) MarkFailed(tag string, at time.Time, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`
		INSERT INTO upstream_failures (tag, failed_at, last_error)
		VALUES (?, ?, ?)
		ON CONFLICT(tag) DO UPDATE SET
			failed_at = excluded.failed_at,
			last_error = excluded.last_error
	`, tag, at.UTC().Format(time.RFC3339Nano), lastErr)
	if err != nil {
		return fmt.Errorf("healthstore: mark failed %q: %w", tag, err)
	}
	return nil
}

// MarkHealthy implements upstream.HealthStore: clears any persisted
// cooldown for tag.
func (s *Store) MarkHealthy(tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conn.Exec(`DELETE FROM upstream_failures WHERE tag = ?`, tag); err != nil {
		return fmt.Errorf("healthstore: mark healthy %q: %w", tag, err)
	}
	return nil
}

// LoadFailures implements upstream.HealthStore: returns every tag with
// an open cooldown and the time its failure was first observed.
func (s *Store) LoadFailures() (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query(`SELECT tag, failed_at FROM upstream_failures`)
	if err != nil {
		return nil, fmt.Errorf("healthstore: load failures: %w", err)
	}
	defer rows.Close()

	out := map[string]time.Time{}
	for rows.Next() {
		var tag, failedAt string
		if err := rows.Scan(&tag, &failedAt); err != nil {
			return nil, fmt.Errorf("healthstore: scan failure row: %w", err)
		}
		at, err := time.Parse(time.RFC3339Nano, failedAt)
		if err != nil {
			continue
		}
		out[tag] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("healthstore: iterate failures: %w", err)
	}
	return out, nil
}
