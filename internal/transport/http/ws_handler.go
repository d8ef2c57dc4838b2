package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
)

// WSHandler upgrades HTTP connections and hands them to the dispatcher.
type WSHandler struct {
	dispatcher *core.Dispatcher
	cfg        *config.Config
	log        *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(d *core.Dispatcher, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{dispatcher: d, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	opts := &websocket.AcceptOptions{OriginPatterns: h.cfg.OriginPatterns}
	if len(h.cfg.OriginPatterns) == 0 {
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()

	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	err = h.dispatcher.Serve(r.Context(), &wsConn{conn: conn})

	status, reason := closeStatus(err)
	if status == websocket.StatusInternalError {
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("ws connection closed with error")
	}
	_ = conn.Close(status, reason)
}

func closeStatus(err error) (websocket.StatusCode, string) {
	switch {
	case err == nil:
		return websocket.StatusNormalClosure, "closing"
	case errors.Is(err, core.ErrProtocolViolation):
		return websocket.StatusPolicyViolation, "authentication required"
	case errors.Is(err, context.Canceled):
		return websocket.StatusGoingAway, "server shutting down"
	}
	if s := websocket.CloseStatus(err); s != -1 {
		return s, "closing"
	}
	return websocket.StatusInternalError, "internal error"
}

// wsConn adapts a websocket connection to core.Conn. Writes on
// websocket.Conn are safe for concurrent use.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

func (c *wsConn) Send(ctx context.Context, frame []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, frame)
}
