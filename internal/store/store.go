package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Session is one connection lifetime as recorded in the journal.
type Session struct {
	ID             string
	Username       string
	ConnectedAt    time.Time
	DisconnectedAt *time.Time // nil while the connection is live
}

// SessionStore journals connection lifetimes. It never stores message content.
type SessionStore interface {
	// OpenSession records a newly authenticated connection.
	OpenSession(ctx context.Context, s *Session) error

	// CloseSession stamps the disconnect time of a session.
	CloseSession(ctx context.Context, id string, at time.Time) error

	// GetSession retrieves a session by connection identity.
	GetSession(ctx context.Context, id string) (*Session, error)

	// ListSessions returns the most recent sessions first.
	ListSessions(ctx context.Context, limit int) ([]*Session, error)

	// Close closes the underlying database connection.
	Close() error
}
