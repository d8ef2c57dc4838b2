package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT PRIMARY KEY,
	username        TEXT NOT NULL,
	connected_at    DATETIME NOT NULL,
	disconnected_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_sessions_connected ON sessions(connected_at DESC);
`

// SQLiteStore implements store.SessionStore for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema without migrations.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// OpenSession records a newly authenticated connection.
func (s *SQLiteStore) OpenSession(ctx context.Context, sess *store.Session) error {
	query := `
		INSERT INTO sessions (id, username, connected_at)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, sess.ID, sess.Username, sess.ConnectedAt.UTC()); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// CloseSession stamps the disconnect time of a session.
func (s *SQLiteStore) CloseSession(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE sessions
		SET disconnected_at = ?
		WHERE id = ? AND disconnected_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// GetSession retrieves a session by connection identity.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*store.Session, error) {
	query := `
		SELECT id, username, connected_at, disconnected_at
		FROM sessions
		WHERE id = ?
	`
	sess, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query session: %w", err)
	}
	return sess, nil
}

// ListSessions returns the most recent sessions first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]*store.Session, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, username, connected_at, disconnected_at
		FROM sessions
		ORDER BY connected_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*store.Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*store.Session, error) {
	var (
		sess         store.Session
		disconnected sql.NullTime
	)
	if err := row.Scan(&sess.ID, &sess.Username, &sess.ConnectedAt, &disconnected); err != nil {
		return nil, err
	}
	if disconnected.Valid {
		t := disconnected.Time
		sess.DisconnectedAt = &t
	}
	return &sess, nil
}
