package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
)

type testServer struct {
	ts         *httptest.Server
	dispatcher *core.Dispatcher
}

// startTestServer serves the full router; journal may be nil.
func startTestServer(t *testing.T, journal store.SessionStore) *testServer {
	t.Helper()

	logger := zerolog.Nop()
	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.SendTimeout = time.Second

	d := core.NewDispatcher(core.NewConnectionRegistry(), core.NewRoomRegistry(), journal, &logger, core.Options{
		SendTimeout:       cfg.SendTimeout,
		FanoutConcurrency: cfg.FanoutConcurrency,
	})

	server := NewServer(d, journal, &cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{ts: ts, dispatcher: d}
}

// createTestStore creates an in-memory SQLite journal.
func createTestStore(t *testing.T) store.SessionStore {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

type wsClient struct {
	conn *websocket.Conn
	ctx  context.Context
	srv  *testServer
}

func dial(t *testing.T, s *testServer) *wsClient {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	wsURL := strings.Replace(s.ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })

	return &wsClient{conn: conn, ctx: ctx, srv: s}
}

func (c *wsClient) send(t *testing.T, v any) {
	t.Helper()
	if err := wsjson.Write(c.ctx, c.conn, v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// next reads frames until one of the given type arrives.
func (c *wsClient) next(t *testing.T, kind string) map[string]any {
	t.Helper()

	for {
		var frame map[string]any
		if err := wsjson.Read(c.ctx, c.conn, &frame); err != nil {
			t.Fatalf("read waiting for %q: %v", kind, err)
		}
		if frame["type"] == kind {
			return frame
		}
	}
}

// login authenticates, waits until the session sits in the default room
// and returns the welcome frame.
func (c *wsClient) login(t *testing.T, username string) map[string]any {
	t.Helper()

	c.send(t, map[string]any{"type": "auth", "username": username})
	welcome := c.next(t, "welcome")

	id, _ := welcome["client_id"].(string)
	eventually(t, "join default room", func() bool {
		return c.srv.dispatcher.Rooms().IsMember(id, core.DefaultRoom)
	})
	return welcome
}

func getJSON(t *testing.T, s *testServer, path string, out any) int {
	t.Helper()

	resp, err := s.ts.Client().Get(s.ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
