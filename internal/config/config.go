package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	// MaxMessageBytes is the websocket read limit per inbound frame.
	MaxMessageBytes int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	// SendTimeout bounds a single outbound frame write.
	SendTimeout time.Duration `mapstructure:"send_timeout" yaml:"send_timeout"`
	// FanoutConcurrency caps concurrent sends per broadcast. Zero means unlimited.
	FanoutConcurrency int `mapstructure:"fanout_concurrency" yaml:"fanout_concurrency"`
	// SweepInterval is how often empty rooms are swept. Zero disables the sweep.
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// SessionDBPath is the SQLite session journal. Empty disables the journal.
	SessionDBPath  string   `mapstructure:"session_db_path" yaml:"session_db_path"`
	OriginPatterns []string `mapstructure:"origin_patterns" yaml:"origin_patterns"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8765",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		MaxMessageBytes:   64 << 10,
		SendTimeout:       5 * time.Second,
		FanoutConcurrency: 64,
		SweepInterval:     time.Minute,
		SessionDBPath:     "relay.db",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.SendTimeout != 0 {
		c.SendTimeout = other.SendTimeout
	}
	if other.FanoutConcurrency != 0 {
		c.FanoutConcurrency = other.FanoutConcurrency
	}
	if other.SweepInterval != 0 {
		c.SweepInterval = other.SweepInterval
	}
	if other.SessionDBPath != "" {
		c.SessionDBPath = other.SessionDBPath
	}
	if len(other.OriginPatterns) > 0 {
		c.OriginPatterns = append([]string(nil), other.OriginPatterns...)
	}
}
