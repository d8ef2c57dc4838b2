package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-relay/internal/app"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/log"
)

var (
	cfgFilePath string
	addr        string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "wirechat-relay",
	Short: "Real-time group chat relay over WebSocket",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFilePath, "config", "", "config file (default ./config.yaml or $RELAY_CONFIG_DEFAULT_PATH)")
	rootCmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

func run(_ *cobra.Command, _ []string) error {
	bootLogger := log.New("info")

	cfg, path, err := loadConfig(bootLogger, cfgFilePath, config.Config{Addr: addr, LogLevel: logLevel})
	if err != nil {
		return err
	}

	logger := log.New(cfg.LogLevel)
	logger.Info().Str("config", path).Str("addr", cfg.Addr).Msg("starting wirechat relay")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// loadConfig resolves file and env settings, then applies non-empty flag values.
func loadConfig(logger *zerolog.Logger, path string, flags config.Config) (config.Config, string, error) {
	cfg, resolved, err := config.Load(logger, path)
	if err != nil {
		return cfg, resolved, err
	}
	cfg.UpdateFrom(flags)
	return cfg, resolved, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
