package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

const maxSessionsLimit = 500

// StatsHandlers exposes read-only views of the registries and the session journal.
type StatsHandlers struct {
	conns   *core.ConnectionRegistry
	rooms   *core.RoomRegistry
	journal store.SessionStore
	log     *zerolog.Logger
}

// NewStatsHandlers creates a new stats handlers instance.
func NewStatsHandlers(conns *core.ConnectionRegistry, rooms *core.RoomRegistry, journal store.SessionStore, logger *zerolog.Logger) *StatsHandlers {
	return &StatsHandlers{
		conns:   conns,
		rooms:   rooms,
		journal: journal,
		log:     logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// OverviewResponse combines connection and room counters.
type OverviewResponse struct {
	core.ConnectionStats
	TotalRooms   int `json:"total_rooms"`
	TotalMembers int `json:"total_members"`
}

// UsersResponse lists online display names.
type UsersResponse struct {
	Users []string `json:"users"`
	Count int      `json:"count"`
}

// UserResponse describes one live connection.
type UserResponse struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	ConnectedAt  string   `json:"connected_at"`
	LastActivity string   `json:"last_activity"`
	Rooms        []string `json:"rooms"`
}

// SessionResponse is one journal entry.
type SessionResponse struct {
	ID             string  `json:"id"`
	Username       string  `json:"username"`
	ConnectedAt    string  `json:"connected_at"`
	DisconnectedAt *string `json:"disconnected_at,omitempty"`
}

// Overview handles GET /api/stats
func (h *StatsHandlers) Overview(c *gin.Context) {
	c.JSON(http.StatusOK, OverviewResponse{
		ConnectionStats: h.conns.Stats(),
		TotalRooms:      h.rooms.Count(),
		TotalMembers:    h.rooms.TotalMemberships(),
	})
}

// ListRooms handles GET /api/rooms
func (h *StatsHandlers) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, h.rooms.AllStats())
}

// GetRoom handles GET /api/rooms/:name
func (h *StatsHandlers) GetRoom(c *gin.Context) {
	name := c.Param("name")
	stats, ok := h.rooms.Stats(name)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListUsers handles GET /api/users
func (h *StatsHandlers) ListUsers(c *gin.Context) {
	names := h.conns.Names()
	c.JSON(http.StatusOK, UsersResponse{Users: names, Count: len(names)})
}

// GetUser handles GET /api/users/:name
func (h *StatsHandlers) GetUser(c *gin.Context) {
	id, ok := h.conns.IDByName(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
		return
	}
	// The connection may have gone between the two lookups.
	conn, ok := h.conns.Lookup(id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
		return
	}

	c.JSON(http.StatusOK, UserResponse{
		ID:           conn.ID,
		Username:     conn.Name,
		ConnectedAt:  proto.Timestamp(conn.ConnectedAt),
		LastActivity: proto.Timestamp(conn.LastActivity),
		Rooms:        h.rooms.RoomsOf(conn.ID),
	})
}

// ListSessions handles GET /api/sessions?limit=N
func (h *StatsHandlers) ListSessions(c *gin.Context) {
	if h.journal == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "session journal disabled"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = min(n, maxSessionsLimit)
	}

	sessions, err := h.journal.ListSessions(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list sessions")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		response = append(response, toSessionResponse(s))
	}

	c.JSON(http.StatusOK, response)
}

// GetSession handles GET /api/sessions/:id
func (h *StatsHandlers) GetSession(c *gin.Context) {
	if h.journal == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "session journal disabled"})
		return
	}

	sess, err := h.journal.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
			return
		}
		h.log.Error().Err(err).Msg("failed to get session")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, toSessionResponse(sess))
}

func toSessionResponse(s *store.Session) SessionResponse {
	item := SessionResponse{
		ID:          s.ID,
		Username:    s.Username,
		ConnectedAt: proto.Timestamp(s.ConnectedAt),
	}
	if s.DisconnectedAt != nil {
		ts := proto.Timestamp(*s.DisconnectedAt)
		item.DisconnectedAt = &ts
	}
	return item
}
