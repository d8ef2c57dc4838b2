package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8765/ws", "WebSocket address")
	user := flag.String("user", "cli-user", "username")
	room := flag.String("room", "general", "room to join")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeAuth, Username: *user}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}
	if *room != "general" {
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeJoinRoom, Room: *room}); err != nil {
			return fmt.Errorf("send join: %w", err)
		}
	}

	fmt.Printf("Connected to %s as %s in room %s\n", *addr, *user, *room)
	fmt.Println("Type messages and press Enter to send. /join <room>, /leave <room>, /ping. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *room)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}
		printEvent(raw)
	}
}

func printEvent(raw json.RawMessage) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		log.Printf("unmarshal frame: %v", err)
		return
	}

	switch head.Type {
	case proto.OutboundTypeWelcome:
		var evt proto.Welcome
		if decode(raw, &evt) {
			fmt.Printf("* %s (you are %s)\n", evt.Message, evt.Username)
		}
	case proto.OutboundTypeMessage:
		var evt proto.Message
		if decode(raw, &evt) {
			fmt.Printf("[%s] %s: %s\n", evt.Room, evt.Sender, evt.Content)
		}
	case proto.OutboundTypeUserJoined:
		var evt proto.Membership
		if decode(raw, &evt) {
			fmt.Printf("[room %s] %s joined\n", evt.Room, evt.User)
		}
	case proto.OutboundTypeUserLeft:
		var evt proto.Membership
		if decode(raw, &evt) {
			fmt.Printf("[room %s] %s left\n", evt.Room, evt.User)
		}
	case proto.OutboundTypePresence:
		var evt proto.Presence
		if decode(raw, &evt) {
			fmt.Printf("[room %s] %s is %s\n", evt.Room, evt.User, evt.Status)
		}
	case proto.OutboundTypeRoomInfo:
		var evt proto.RoomInfo
		if decode(raw, &evt) {
			fmt.Printf("[room %s] %d members: %s\n", evt.Room, evt.MemberCount, strings.Join(evt.Members, ", "))
		}
	case proto.OutboundTypeTyping:
		// too noisy for a line-based client
	case proto.OutboundTypeError:
		var evt proto.Error
		if decode(raw, &evt) {
			fmt.Printf("! error: %s\n", evt.Message)
		}
	default:
		fmt.Printf("event=%s data=%s\n", head.Type, raw)
	}
}

func decode(raw json.RawMessage, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		log.Printf("unmarshal event: %v", err)
		return false
	}
	return true
}

func writeLoop(ctx context.Context, conn *websocket.Conn, room string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			msg := proto.Inbound{Type: proto.InboundTypeChat, Room: room, Content: text}
			if cmd, arg, found := strings.Cut(text, " "); strings.HasPrefix(cmd, "/") {
				arg = strings.TrimSpace(arg)
				switch {
				case cmd == "/join" && found && arg != "":
					msg = proto.Inbound{Type: proto.InboundTypeJoinRoom, Room: arg}
					room = arg
				case cmd == "/leave" && found && arg != "":
					msg = proto.Inbound{Type: proto.InboundTypeLeaveRoom, Room: arg}
				case cmd == "/ping":
					msg = proto.Inbound{Type: proto.InboundTypePing}
				default:
					fmt.Printf("unknown command %q\n", cmd)
					continue
				}
			}

			if err := wsjson.Write(ctx, conn, msg); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
