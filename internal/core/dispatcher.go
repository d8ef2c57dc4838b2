package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

const (
	anonymousName  = "Anonymous"
	welcomeMessage = "Welcome to the chat server!"
	logPreviewLen  = 50
)

// Options tunes the Dispatcher.
type Options struct {
	// SendTimeout bounds one outbound frame. Zero means no extra bound.
	SendTimeout time.Duration
	// FanoutConcurrency caps concurrent sends per broadcast. Zero means unlimited.
	FanoutConcurrency int
	// SweepInterval drives Run. Zero disables the sweep.
	SweepInterval time.Duration
}

// Dispatcher runs client sessions and fans events out to rooms.
type Dispatcher struct {
	conns   *ConnectionRegistry
	rooms   *RoomRegistry
	journal store.SessionStore
	log     *zerolog.Logger
	opts    Options
	now     func() time.Time

	sessions sync.WaitGroup
}

// NewDispatcher wires the registries together. journal may be nil.
func NewDispatcher(conns *ConnectionRegistry, rooms *RoomRegistry, journal store.SessionStore, logger *zerolog.Logger, opts Options) *Dispatcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Dispatcher{
		conns:   conns,
		rooms:   rooms,
		journal: journal,
		log:     logger,
		opts:    opts,
		now:     time.Now,
	}
}

// Connections exposes the connection registry for read-only callers.
func (d *Dispatcher) Connections() *ConnectionRegistry { return d.conns }

// Rooms exposes the room registry for read-only callers.
func (d *Dispatcher) Rooms() *RoomRegistry { return d.rooms }

// Serve runs one session until the transport closes. It returns nil on a
// normal close and wraps ErrProtocolViolation if the client never
// authenticated properly.
func (d *Dispatcher) Serve(ctx context.Context, conn Conn) (err error) {
	d.sessions.Add(1)
	defer d.sessions.Done()

	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Msg("session panicked")
			err = fmt.Errorf("%w: %v", ErrSessionPanic, r)
		}
	}()

	name, err := d.authenticate(ctx, conn)
	if err != nil {
		return err
	}

	c := d.conns.Register(conn, name)
	// The only teardown path: runs on close, read error and panic alike.
	defer d.disconnect(ctx, c.ID)

	d.admit(ctx, conn, c)

	for {
		frame, err := conn.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				d.log.Info().Str("client_id", c.ID).Msg("client disconnected")
				return nil
			}
			d.log.Warn().Err(err).Str("client_id", c.ID).Msg("client disconnected with error")
			return err
		}
		d.conns.Touch(c.ID)
		d.handle(ctx, c.ID, frame)
	}
}

// Wait blocks until every running session has returned from Serve or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// authenticate reads the first frame and returns the requested display name.
func (d *Dispatcher) authenticate(ctx context.Context, conn Conn) (string, error) {
	frame, err := conn.Receive(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("%w: closed before auth", ErrProtocolViolation)
		}
		return "", err
	}

	in, err := proto.Decode(frame)
	if err != nil {
		d.reply(ctx, conn, proto.NewError(ErrMsgInvalidJSON, d.now()))
		return "", fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	if in.Type != proto.InboundTypeAuth {
		d.reply(ctx, conn, proto.NewError(ErrMsgAuthRequired, d.now()))
		return "", fmt.Errorf("%w: first message type %q", ErrProtocolViolation, in.Type)
	}

	name := strings.TrimSpace(in.Username)
	if name == "" {
		name = anonymousName
	}
	return name, nil
}

// admit greets a freshly registered connection and announces it in the default room.
func (d *Dispatcher) admit(ctx context.Context, conn Conn, c Connection) {
	d.log.Info().Str("client_id", c.ID).Str("username", c.Name).Msg("client connected")
	d.openSession(ctx, c)

	d.reply(ctx, conn, proto.Welcome{
		Type:      proto.OutboundTypeWelcome,
		ClientID:  c.ID,
		Username:  c.Name,
		Message:   welcomeMessage,
		Timestamp: proto.Timestamp(d.now()),
	})

	d.rooms.Join(c.ID, DefaultRoom)
	d.Broadcast(ctx, DefaultRoom, d.presence(c.ID, c.Name, DefaultRoom, proto.StatusOnline), c.ID)
}

func (d *Dispatcher) handle(ctx context.Context, id string, frame []byte) {
	in, err := proto.Decode(frame)
	if err != nil {
		d.log.Warn().Err(err).Str("client_id", id).Msg("invalid inbound frame")
		d.sendTo(ctx, id, proto.NewError(ErrMsgInvalidJSON, d.now()))
		return
	}

	d.log.Debug().Str("client_id", id).Str("type", in.Type).Msg("inbound")

	switch in.Type {
	case proto.InboundTypeChat:
		d.handleChat(ctx, id, in)
	case proto.InboundTypeTyping:
		d.handleTyping(ctx, id, in)
	case proto.InboundTypeJoinRoom:
		d.handleJoin(ctx, id, in)
	case proto.InboundTypeLeaveRoom:
		d.handleLeave(ctx, id, in)
	case proto.InboundTypePing:
		d.sendTo(ctx, id, proto.Pong{Type: proto.OutboundTypePong, Timestamp: proto.Timestamp(d.now())})
	default:
		// Unknown types are dropped without an error so older clients keep working.
		d.log.Warn().Str("client_id", id).Str("type", in.Type).Msg("unknown message type")
	}
}

func (d *Dispatcher) handleChat(ctx context.Context, id string, in proto.Inbound) {
	if strings.TrimSpace(in.Content) == "" {
		return
	}
	room := roomOrDefault(in.Room)
	name := d.conns.Name(id)

	d.rooms.IncrementMessageCount(room)
	d.Broadcast(ctx, room, proto.Message{
		Type:      proto.OutboundTypeMessage,
		Room:      room,
		Sender:    name,
		SenderID:  id,
		Content:   in.Content,
		Timestamp: proto.Timestamp(d.now()),
	}, "")

	d.log.Info().Str("room", room).Str("username", name).Str("content", preview(in.Content)).Msg("chat")
}

func (d *Dispatcher) handleTyping(ctx context.Context, id string, in proto.Inbound) {
	room := roomOrDefault(in.Room)
	d.Broadcast(ctx, room, proto.Typing{
		Type:     proto.OutboundTypeTyping,
		Room:     room,
		User:     d.conns.Name(id),
		UserID:   id,
		IsTyping: in.IsTyping,
	}, id)
}

func (d *Dispatcher) handleJoin(ctx context.Context, id string, in proto.Inbound) {
	if in.Room == "" {
		return
	}
	name := d.conns.Name(id)
	d.rooms.Join(id, in.Room)

	d.Broadcast(ctx, in.Room, d.membership(proto.OutboundTypeUserJoined, id, name, in.Room), "")
	d.sendRoomInfo(ctx, id, in.Room)

	d.log.Info().Str("client_id", id).Str("username", name).Str("room", in.Room).Msg("joined room")
}

func (d *Dispatcher) handleLeave(ctx context.Context, id string, in proto.Inbound) {
	if in.Room == "" {
		return
	}
	name := d.conns.Name(id)
	d.rooms.Leave(id, in.Room)

	d.Broadcast(ctx, in.Room, d.membership(proto.OutboundTypeUserLeft, id, name, in.Room), "")

	d.log.Info().Str("client_id", id).Str("username", name).Str("room", in.Room).Msg("left room")
}

func (d *Dispatcher) sendRoomInfo(ctx context.Context, id, room string) {
	members := d.rooms.Members(room)
	names := make([]string, 0, len(members))
	for _, member := range members {
		names = append(names, d.conns.Name(member))
	}
	d.sendTo(ctx, id, proto.RoomInfo{
		Type:        proto.OutboundTypeRoomInfo,
		Room:        room,
		Members:     names,
		MemberCount: len(members),
	})
}

// disconnect leaves every room, tells each room the user went offline and
// frees the identity. Sends use a context detached from the closed session.
func (d *Dispatcher) disconnect(ctx context.Context, id string) {
	ctx = context.WithoutCancel(ctx)
	name := d.conns.Name(id)

	for _, room := range d.rooms.LeaveAll(id) {
		d.Broadcast(ctx, room, d.presence(id, name, room, proto.StatusOffline), "")
	}
	d.conns.Unregister(id)
	d.closeSession(ctx, id)

	d.log.Info().Str("client_id", id).Str("username", name).Msg("client fully disconnected")
}

func (d *Dispatcher) presence(id, name, room, status string) proto.Presence {
	return proto.Presence{
		Type:      proto.OutboundTypePresence,
		Room:      room,
		User:      name,
		UserID:    id,
		Status:    status,
		Timestamp: proto.Timestamp(d.now()),
	}
}

func (d *Dispatcher) membership(kind, id, name, room string) proto.Membership {
	return proto.Membership{
		Type:      kind,
		Room:      room,
		User:      name,
		UserID:    id,
		Timestamp: proto.Timestamp(d.now()),
	}
}

// sendTo writes a private event to a registered connection.
func (d *Dispatcher) sendTo(ctx context.Context, id string, event any) {
	h, ok := d.conns.Handle(id)
	if !ok {
		return
	}
	d.reply(ctx, h, event)
}

func (d *Dispatcher) reply(ctx context.Context, h Handle, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		d.log.Error().Err(err).Msg("marshal event")
		return
	}
	if err := d.send(ctx, h, data); err != nil {
		d.log.Warn().Err(err).Msg("send reply")
	}
}

func (d *Dispatcher) send(ctx context.Context, h Handle, data []byte) error {
	if d.opts.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.SendTimeout)
		defer cancel()
	}
	return h.Send(ctx, data)
}

func (d *Dispatcher) openSession(ctx context.Context, c Connection) {
	if d.journal == nil {
		return
	}
	err := d.journal.OpenSession(ctx, &store.Session{ID: c.ID, Username: c.Name, ConnectedAt: c.ConnectedAt})
	if err != nil {
		d.log.Warn().Err(err).Str("client_id", c.ID).Msg("journal open session")
	}
}

func (d *Dispatcher) closeSession(ctx context.Context, id string) {
	if d.journal == nil {
		return
	}
	if err := d.journal.CloseSession(ctx, id, d.now()); err != nil {
		d.log.Warn().Err(err).Str("client_id", id).Msg("journal close session")
	}
}

func roomOrDefault(room string) string {
	if room == "" {
		return DefaultRoom
	}
	return room
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= logPreviewLen {
		return s
	}
	return string(r[:logPreviewLen]) + "..."
}
