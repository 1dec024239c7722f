package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const DefaultPort = 8080

type Config struct {
	Server ServerConfig `yaml:"server"`
	Relay  RelayConfig  `yaml:"relay"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" env:"RELAY_PORT"`
	Host           string   `yaml:"host" env:"RELAY_HOST"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxConnections int      `yaml:"max_connections"`
	ServeFrontend  bool     `yaml:"serve_frontend"`
}

type RelayConfig struct {
	SendBuffer      int           `yaml:"send_buffer"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	PongTimeout     time.Duration `yaml:"pong_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	AutoNickname    bool          `yaml:"auto_nickname"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          DefaultPort,
			Host:          "0.0.0.0",
			ServeFrontend: true,
		},
		Relay: RelayConfig{
			SendBuffer:      64,
			WriteTimeout:    10 * time.Second,
			PongTimeout:     60 * time.Second,
			PingInterval:    30 * time.Second,
			MaxMessageBytes: 4096,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func Default() *Config {
	return defaultConfig()
}

// Load reads the yaml file at path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the defaults when path does not
// exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// ApplyEnv overrides the listen address from RELAY_HOST and RELAY_PORT.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(&c.Server); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxConnections < 0 {
		errs = append(errs, fmt.Errorf("server.max_connections must not be negative"))
	}
	if c.Relay.SendBuffer < 1 {
		errs = append(errs, fmt.Errorf("relay.send_buffer must be positive"))
	}
	if c.Relay.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("relay.write_timeout must be positive"))
	}
	if c.Relay.PingInterval <= 0 || c.Relay.PongTimeout <= c.Relay.PingInterval {
		errs = append(errs, fmt.Errorf("relay.pong_timeout (%v) must exceed relay.ping_interval (%v)",
			c.Relay.PongTimeout, c.Relay.PingInterval))
	}
	if c.Relay.MaxMessageBytes < 64 {
		errs = append(errs, fmt.Errorf("relay.max_message_bytes must be at least 64"))
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

func (l LogConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", l.Level, err)
	}
	return lvl, nil
}

// NewLogger builds the process logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	lvl, err := l.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
