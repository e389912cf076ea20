// Package config loads the engine's configuration from YAML or JSON5
// files, with $include composition and environment-variable expansion.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration for the realtime engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Redis         RedisConfig         `yaml:"redis"`
	Heartbeat     HeartbeatConfig     `yaml:"heartbeat"`
	Bot           BotConfig           `yaml:"bot"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// FrontendOrigin restricts websocket handshakes to one browser
	// origin. Empty allows any origin.
	FrontendOrigin string `yaml:"frontend_origin"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type AuthConfig struct {
	// JWTSecret enables full token verification on the handshake. Empty
	// enforces token presence only.
	JWTSecret string `yaml:"jwt_secret"`

	// TokenExpiry bounds tokens issued by local tooling.
	TokenExpiry time.Duration `yaml:"token_expiry"`
}

type RedisConfig struct {
	// URL is a redis connection URL, e.g. "redis://localhost:6379/0".
	// Empty runs the engine single-node with in-process fanout.
	URL string `yaml:"url"`

	// Channel is the shared pub/sub channel name.
	Channel string `yaml:"channel"`
}

type HeartbeatConfig struct {
	// PingInterval is how often the server pings idle connections.
	PingInterval time.Duration `yaml:"ping_interval"`

	// PongTimeout closes a connection that has not answered a ping.
	PongTimeout time.Duration `yaml:"pong_timeout"`

	// SendBuffer is the per-connection outbound queue depth.
	SendBuffer int `yaml:"send_buffer"`
}

type BotConfig struct {
	// APIKey authenticates against the Anthropic API. Empty disables the
	// assistant; bot:message events then fail with an error event.
	APIKey string `yaml:"api_key"`

	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`

	// Timeout bounds one completion call.
	Timeout time.Duration `yaml:"timeout"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

type ObservabilityConfig struct {
	// OTLPEndpoint is the OTLP/gRPC collector address. Empty disables
	// trace export.
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// Load reads, merges, and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8081
	}
	if cfg.Auth.TokenExpiry == 0 {
		cfg.Auth.TokenExpiry = 24 * time.Hour
	}
	if cfg.Redis.Channel == "" {
		cfg.Redis.Channel = "realtime:rooms"
	}
	if cfg.Heartbeat.PingInterval == 0 {
		cfg.Heartbeat.PingInterval = 25 * time.Second
	}
	if cfg.Heartbeat.PongTimeout == 0 {
		cfg.Heartbeat.PongTimeout = 60 * time.Second
	}
	if cfg.Heartbeat.SendBuffer == 0 {
		cfg.Heartbeat.SendBuffer = 64
	}
	if cfg.Bot.MaxTokens == 0 {
		cfg.Bot.MaxTokens = 1024
	}
	if cfg.Bot.Timeout == 0 {
		cfg.Bot.Timeout = 30 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "realtime"
	}
	if cfg.Observability.SamplingRate == 0 {
		cfg.Observability.SamplingRate = 1.0
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Heartbeat.PongTimeout <= c.Heartbeat.PingInterval {
		return fmt.Errorf("heartbeat.pong_timeout (%s) must exceed heartbeat.ping_interval (%s)",
			c.Heartbeat.PongTimeout, c.Heartbeat.PingInterval)
	}
	if c.Heartbeat.SendBuffer < 1 {
		return fmt.Errorf("heartbeat.send_buffer must be at least 1")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	if r := c.Observability.SamplingRate; r < 0 || r > 1 {
		return fmt.Errorf("observability.sampling_rate %v out of range [0,1]", r)
	}
	return nil
}
