package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "RELAY"
	envConfigDefaultPath = "RELAY_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("read_header_timeout", cfg.ReadHeaderTimeout)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("max_message_bytes", cfg.MaxMessageBytes)
	v.SetDefault("send_timeout", cfg.SendTimeout)
	v.SetDefault("fanout_concurrency", cfg.FanoutConcurrency)
	v.SetDefault("sweep_interval", cfg.SweepInterval)
	v.SetDefault("session_db_path", cfg.SessionDBPath)
	v.SetDefault("origin_patterns", []string{})

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, configPath, nil
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

type fileConfig struct {
	Addr              string   `yaml:"addr"`
	ReadHeaderTimeout string   `yaml:"read_header_timeout"`
	ShutdownTimeout   string   `yaml:"shutdown_timeout"`
	LogLevel          string   `yaml:"log_level"`
	MaxMessageBytes   int64    `yaml:"max_message_bytes"`
	SendTimeout       string   `yaml:"send_timeout"`
	FanoutConcurrency int      `yaml:"fanout_concurrency"`
	SweepInterval     string   `yaml:"sweep_interval"`
	SessionDBPath     string   `yaml:"session_db_path"`
	OriginPatterns    []string `yaml:"origin_patterns"`
}

// writeDefaultConfig renders durations as strings so viper can parse the file back.
func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(fileConfig{
		Addr:              cfg.Addr,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout.String(),
		ShutdownTimeout:   cfg.ShutdownTimeout.String(),
		LogLevel:          cfg.LogLevel,
		MaxMessageBytes:   cfg.MaxMessageBytes,
		SendTimeout:       cfg.SendTimeout.String(),
		FanoutConcurrency: cfg.FanoutConcurrency,
		SweepInterval:     cfg.SweepInterval.String(),
		SessionDBPath:     cfg.SessionDBPath,
		OriginPatterns:    cfg.OriginPatterns,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
