// Package proto defines the JSON envelopes exchanged with chat clients.
package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	InboundTypeAuth      = "auth"
	InboundTypeChat      = "chat"
	InboundTypeTyping    = "typing"
	InboundTypeJoinRoom  = "join_room"
	InboundTypeLeaveRoom = "leave_room"
	InboundTypePing      = "ping"

	OutboundTypeWelcome    = "welcome"
	OutboundTypeMessage    = "message"
	OutboundTypeTyping     = "typing"
	OutboundTypeUserJoined = "user_joined"
	OutboundTypeUserLeft   = "user_left"
	OutboundTypePresence   = "presence"
	OutboundTypeRoomInfo   = "room_info"
	OutboundTypePong       = "pong"
	OutboundTypeError      = "error"

	StatusOnline  = "online"
	StatusOffline = "offline"
)

// ErrMalformed is returned when a frame is not a JSON object.
var ErrMalformed = errors.New("malformed message")

// Inbound is the flat envelope for every client message; unused fields stay zero.
type Inbound struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Room     string `json:"room,omitempty"`
	Content  string `json:"content,omitempty"`
	IsTyping bool   `json:"is_typing,omitempty"`
}

// Decode parses one inbound text frame.
func Decode(frame []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(frame, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return in, nil
}

// Timestamp formats t the way every outbound event carries it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Welcome acknowledges a successful auth.
type Welcome struct {
	Type      string `json:"type"`
	ClientID  string `json:"client_id"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Message is a chat line fanned out to a room.
type Message struct {
	Type      string `json:"type"`
	Room      string `json:"room"`
	Sender    string `json:"sender"`
	SenderID  string `json:"sender_id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Typing is a typing indicator.
type Typing struct {
	Type     string `json:"type"`
	Room     string `json:"room"`
	User     string `json:"user"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// Membership is used for user_joined and user_left.
type Membership struct {
	Type      string `json:"type"`
	Room      string `json:"room"`
	User      string `json:"user"`
	UserID    string `json:"user_id"`
	Timestamp string `json:"timestamp"`
}

// Presence notifies a room that a user came online or went offline.
type Presence struct {
	Type      string `json:"type"`
	Room      string `json:"room"`
	User      string `json:"user"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// RoomInfo is the private snapshot sent after a join.
type RoomInfo struct {
	Type        string   `json:"type"`
	Room        string   `json:"room"`
	Members     []string `json:"members"`
	MemberCount int      `json:"member_count"`
}

// Pong answers a ping.
type Pong struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// Error describes a protocol-level error response.
type Error struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// NewError builds an error event stamped with now.
func NewError(msg string, now time.Time) Error {
	return Error{Type: OutboundTypeError, Message: msg, Timestamp: Timestamp(now)}
}
