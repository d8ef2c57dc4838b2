package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenAndCloseSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	connected := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.OpenSession(ctx, &store.Session{ID: "c1", Username: "alice", ConnectedAt: connected}); err != nil {
		t.Fatalf("open session: %v", err)
	}

	got, err := s.GetSession(ctx, "c1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Username != "alice" || !got.ConnectedAt.Equal(connected) {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.DisconnectedAt != nil {
		t.Fatalf("live session should have no disconnect time, got %v", got.DisconnectedAt)
	}

	disconnected := connected.Add(5 * time.Minute)
	if err := s.CloseSession(ctx, "c1", disconnected); err != nil {
		t.Fatalf("close session: %v", err)
	}

	got, err = s.GetSession(ctx, "c1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.DisconnectedAt == nil || !got.DisconnectedAt.Equal(disconnected) {
		t.Fatalf("unexpected disconnect time: %v", got.DisconnectedAt)
	}

	// A second close finds no open session.
	if err := s.CloseSession(ctx, "c1", disconnected); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second close, got %v", err)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetSession(context.Background(), "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		sess := &store.Session{ID: id, Username: "user-" + id, ConnectedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.OpenSession(ctx, sess); err != nil {
			t.Fatalf("open session %s: %v", id, err)
		}
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{name: "all", limit: 10, want: []string{"c", "b", "a"}},
		{name: "limited", limit: 2, want: []string{"c", "b"}},
		{name: "default limit", limit: 0, want: []string{"c", "b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions, err := s.ListSessions(ctx, tt.limit)
			if err != nil {
				t.Fatalf("list sessions: %v", err)
			}
			if len(sessions) != len(tt.want) {
				t.Fatalf("expected %d sessions, got %d", len(tt.want), len(sessions))
			}
			for i, sess := range sessions {
				if sess.ID != tt.want[i] {
					t.Errorf("expected %s at index %d, got %s", tt.want[i], i, sess.ID)
				}
			}
		})
	}
}
