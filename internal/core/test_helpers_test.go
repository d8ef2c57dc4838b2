package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var errSendFailed = errors.New("send failed")

// fakeConn is an in-memory Conn. Closing inbound ends the session with io.EOF.
type fakeConn struct {
	inbound chan []byte

	mu      sync.Mutex
	frames  []map[string]any
	failing bool
	panics  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16)}
}

func (c *fakeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame, ok := <-c.inbound:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Send(_ context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.panics {
		panic("transport exploded")
	}
	if c.failing {
		return errSendFailed
	}
	var decoded map[string]any
	if err := json.Unmarshal(frame, &decoded); err != nil {
		return err
	}
	c.frames = append(c.frames, decoded)
	return nil
}

func (c *fakeConn) push(t *testing.T, v any) {
	t.Helper()

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal inbound: %v", err)
	}
	c.inbound <- data
}

func (c *fakeConn) pushRaw(raw string) {
	c.inbound <- []byte(raw)
}

func (c *fakeConn) setFailing(v bool) {
	c.mu.Lock()
	c.failing = v
	c.mu.Unlock()
}

func (c *fakeConn) framesOf(kind string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []map[string]any
	for _, f := range c.frames {
		if f["type"] == kind {
			out = append(out, f)
		}
	}
	return out
}

func (c *fakeConn) count(kind string) int {
	return len(c.framesOf(kind))
}

func (c *fakeConn) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// mustFrame waits until at least n frames of kind arrived and returns the nth.
func mustFrame(t *testing.T, c *fakeConn, kind string, n int) map[string]any {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if frames := c.framesOf(kind); len(frames) >= n {
			return frames[n-1]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d %q frame(s), got %d", n, kind, c.count(kind))
	return nil
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()

	logger := zerolog.Nop()
	return NewDispatcher(NewConnectionRegistry(), NewRoomRegistry(), nil, &logger, Options{
		SendTimeout:       time.Second,
		FanoutConcurrency: 4,
	})
}

type session struct {
	conn *fakeConn
	id   string
	name string
	done chan error
}

// startSession runs Serve in the background without authenticating.
func startSession(t *testing.T, d *Dispatcher, conn *fakeConn) chan error {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Serve(ctx, conn)
	}()
	t.Cleanup(func() {
		cancel()
		waitDone(t, done)
	})
	return done
}

// connect authenticates a new client and waits for its welcome.
func connect(t *testing.T, d *Dispatcher, username string) *session {
	t.Helper()

	conn := newFakeConn()
	done := startSession(t, d, conn)
	conn.push(t, map[string]any{"type": "auth", "username": username})

	welcome := mustFrame(t, conn, "welcome", 1)
	id, _ := welcome["client_id"].(string)
	name, _ := welcome["username"].(string)

	// Auto-join happens right after the welcome.
	deadline := time.Now().Add(2 * time.Second)
	for !d.rooms.IsMember(id, DefaultRoom) {
		if time.Now().After(deadline) {
			t.Fatalf("%s never joined %s", name, DefaultRoom)
		}
		time.Sleep(5 * time.Millisecond)
	}

	return &session{conn: conn, id: id, name: name, done: done}
}

// hangUp closes the client side and waits for the finalizer.
func (s *session) hangUp(t *testing.T) error {
	t.Helper()

	close(s.conn.inbound)
	return waitDone(t, s.done)
}

func waitDone(t *testing.T, done chan error) error {
	t.Helper()

	select {
	case err := <-done:
		// Put it back so a later waiter does not block.
		done <- err
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not finish")
		return nil
	}
}

// checkConsistency asserts that both membership directions agree.
func checkConsistency(t *testing.T, r *RoomRegistry) {
	t.Helper()

	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, rm := range r.rooms {
		for id := range rm.members {
			if _, ok := r.joined[id][name]; !ok {
				t.Fatalf("room %q lists %q but reverse map does not", name, id)
			}
		}
		if len(rm.members) == 0 && !r.IsDefault(name) {
			t.Fatalf("empty non-default room %q still present", name)
		}
	}
	for id, set := range r.joined {
		if len(set) == 0 {
			t.Fatalf("empty joined set kept for %q", id)
		}
		for name := range set {
			rm, ok := r.rooms[name]
			if !ok {
				t.Fatalf("%q joined missing room %q", id, name)
			}
			if _, ok := rm.members[id]; !ok {
				t.Fatalf("%q claims %q but room does not list it", id, name)
			}
		}
	}
}
