package app

import (
	"context"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-relay/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	dispatcher      *core.Dispatcher
	store           store.SessionStore
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	var journal store.SessionStore
	if cfg.SessionDBPath != "" {
		st, err := sqlite.New(cfg.SessionDBPath)
		if err != nil {
			return nil, fmt.Errorf("init session journal: %w", err)
		}
		journal = st
		logger.Info().Str("db_path", cfg.SessionDBPath).Msg("session journal initialized")
	} else {
		logger.Info().Msg("session journal disabled")
	}

	dispatcher := core.NewDispatcher(core.NewConnectionRegistry(), core.NewRoomRegistry(), journal, logger, core.Options{
		SendTimeout:       cfg.SendTimeout,
		FanoutConcurrency: cfg.FanoutConcurrency,
		SweepInterval:     cfg.SweepInterval,
	})
	server := transporthttp.NewServer(dispatcher, journal, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		dispatcher:      dispatcher,
		store:           journal,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
// Websocket sessions derive from ctx, so cancelling it also ends hijacked connections.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	a.server.BaseContext = func(net.Listener) context.Context { return ctx }

	go a.dispatcher.Run(ctx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("relay listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.drain(shutdownCtx)
			a.cleanup()
			return err
		}

		// Shutdown does not track hijacked websocket connections.
		a.drain(shutdownCtx)
		a.cleanup()
		return <-serverErr
	}
}

// drain waits for running sessions to finish their finalizers.
func (a *App) drain(ctx context.Context) {
	if err := a.dispatcher.Wait(ctx); err != nil {
		a.log.Warn().Err(err).Msg("sessions still running at shutdown")
	}
}

// cleanup closes the session journal.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close session journal")
		} else {
			a.log.Info().Msg("session journal closed")
		}
	}
}
