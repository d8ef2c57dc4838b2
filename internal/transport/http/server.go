package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// NewServer builds the HTTP server: the websocket endpoint on a plain mux,
// read-only ops routes on gin.
// journal may be nil when the session journal is disabled.
func NewServer(d *core.Dispatcher, journal store.SessionStore, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	stats := NewStatsHandlers(d.Connections(), d.Rooms(), journal, logger)
	api := router.Group("/api")
	{
		api.GET("/stats", stats.Overview)
		api.GET("/rooms", stats.ListRooms)
		api.GET("/rooms/:name", stats.GetRoom)
		api.GET("/users", stats.ListUsers)
		api.GET("/users/:name", stats.GetUser)
		api.GET("/sessions", stats.ListSessions)
		api.GET("/sessions/:id", stats.GetSession)
	}

	// gin's writer wrapper breaks hijacked websocket frames, so /ws stays off the router.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(d, cfg, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
