package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

func registerMembers(t *testing.T, d *Dispatcher, room string, n int) ([]string, []*fakeConn) {
	t.Helper()

	ids := make([]string, 0, n)
	conns := make([]*fakeConn, 0, n)
	for i := 0; i < n; i++ {
		conn := newFakeConn()
		c := d.conns.Register(conn, fmt.Sprintf("member%d", i))
		d.rooms.Join(c.ID, room)
		ids = append(ids, c.ID)
		conns = append(conns, conn)
	}
	return ids, conns
}

func TestBroadcastIsolatesFailingRecipient(t *testing.T) {
	d := newTestDispatcher(t)
	_, conns := registerMembers(t, d, "lobby", 5)
	conns[2].setFailing(true)

	delivered := d.Broadcast(context.Background(), "lobby", proto.Pong{Type: "pong"}, "")
	if delivered != 4 {
		t.Fatalf("expected 4 deliveries, got %d", delivered)
	}
	for i, c := range conns {
		want := 1
		if i == 2 {
			want = 0
		}
		if got := c.count("pong"); got != want {
			t.Fatalf("member %d got %d frames, want %d", i, got, want)
		}
	}
}

func TestBroadcastIsolatesPanickingRecipient(t *testing.T) {
	d := newTestDispatcher(t)
	_, conns := registerMembers(t, d, "lobby", 3)
	conns[0].panics = true

	delivered := d.Broadcast(context.Background(), "lobby", proto.Pong{Type: "pong"}, "")
	if delivered != 2 {
		t.Fatalf("expected 2 deliveries, got %d", delivered)
	}
	if conns[1].count("pong") != 1 || conns[2].count("pong") != 1 {
		t.Fatalf("healthy members missed the broadcast")
	}
}

func TestBroadcastExcludesAndSkipsGoneHandles(t *testing.T) {
	d := newTestDispatcher(t)
	ids, conns := registerMembers(t, d, "lobby", 3)

	// A member whose connection vanished before the registries caught up.
	d.conns.Unregister(ids[1])

	delivered := d.Broadcast(context.Background(), "lobby", proto.Pong{Type: "pong"}, ids[0])
	if delivered != 1 {
		t.Fatalf("expected 1 delivery, got %d", delivered)
	}
	if conns[0].count("pong") != 0 {
		t.Fatalf("excluded member received the event")
	}
	if conns[1].count("pong") != 0 {
		t.Fatalf("unregistered member received the event")
	}
	if conns[2].count("pong") != 1 {
		t.Fatalf("remaining member missed the event")
	}
}

func TestBroadcastToAbsentRoom(t *testing.T) {
	d := newTestDispatcher(t)

	if n := d.Broadcast(context.Background(), "nowhere", proto.Pong{Type: "pong"}, ""); n != 0 {
		t.Fatalf("expected no deliveries, got %d", n)
	}
}

// blockingHandle holds every send until released.
type blockingHandle struct {
	release chan struct{}
}

func (h *blockingHandle) Send(ctx context.Context, _ []byte) error {
	select {
	case <-h.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestBroadcastDoesNotHoldRegistryLock(t *testing.T) {
	d := newTestDispatcher(t)
	slow := &blockingHandle{release: make(chan struct{})}
	c := d.conns.Register(slow, "slow")
	d.rooms.Join(c.ID, "lobby")

	done := make(chan int, 1)
	go func() {
		done <- d.Broadcast(context.Background(), "lobby", proto.Pong{Type: "pong"}, "")
	}()

	// Registry mutation must go through while the send is stuck.
	joined := make(chan struct{})
	go func() {
		d.rooms.Join("other", "lobby")
		d.conns.Register(newFakeConn(), "other")
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatalf("registry blocked by an in-flight broadcast")
	}

	close(slow.release)
	if n := <-done; n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
}

func TestBroadcastSendTimeout(t *testing.T) {
	d := newTestDispatcher(t)
	d.opts.SendTimeout = 20 * time.Millisecond

	stuck := &blockingHandle{release: make(chan struct{})}
	c := d.conns.Register(stuck, "stuck")
	d.rooms.Join(c.ID, "lobby")
	_, conns := registerMembers(t, d, "lobby", 2)

	start := time.Now()
	delivered := d.Broadcast(context.Background(), "lobby", proto.Pong{Type: "pong"}, "")
	if delivered != 2 {
		t.Fatalf("expected 2 deliveries, got %d", delivered)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("stuck recipient was not bounded by the send timeout")
	}
	for i, conn := range conns {
		if conn.count("pong") != 1 {
			t.Fatalf("member %d missed the event", i)
		}
	}
}
