package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvToken  = "PULSESYNC_TOKEN"
	EnvServer = "PULSESYNC_SERVER"
)

// Config holds application configuration
type Config struct {
	LogLevel    string `yaml:"log_level" default:"info"`
	DBPath      string `yaml:"db_path" default:"pulsesync.db"`
	ServerURL   string `yaml:"server_url"`
	ClientID    string `yaml:"client_id" default:"vassarOMH"`
	RedirectURL string `yaml:"redirect_url"`
	Token       string `yaml:"token"`

	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"6s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"15s"`
	SyncInterval   time.Duration `yaml:"sync_interval" default:"60s"`
	WakeInterval   time.Duration `yaml:"wake_interval" default:"300s"`
	HoldDuration   time.Duration `yaml:"hold_duration" default:"30s"`
	RetryDelay     time.Duration `yaml:"retry_delay" default:"5s"`
	HTTPTimeout    time.Duration `yaml:"http_timeout" default:"30s"`

	// LiveAddr enables the websocket display endpoint when set, e.g. ":8080".
	LiveAddr     string `yaml:"live_addr"`
	TraceSamples int    `yaml:"trace_samples" default:"500"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads the YAML file at path over the defaults, then applies environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides the token and server URL from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvToken); ok && v != "" {
		c.Token = v
	}
	if v, ok := lookup(EnvServer); ok && v != "" {
		c.ServerURL = v
	}
}

// Validate rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.DBPath == "" {
		return errors.New("db_path must not be empty")
	}
	for name, d := range map[string]time.Duration{
		"scan_timeout":    c.ScanTimeout,
		"connect_timeout": c.ConnectTimeout,
		"sync_interval":   c.SyncInterval,
		"wake_interval":   c.WakeInterval,
		"hold_duration":   c.HoldDuration,
		"retry_delay":     c.RetryDelay,
		"http_timeout":    c.HTTPTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.HoldDuration >= c.WakeInterval {
		return fmt.Errorf("hold_duration (%s) must be shorter than wake_interval (%s)", c.HoldDuration, c.WakeInterval)
	}
	if c.TraceSamples <= 0 {
		return fmt.Errorf("trace_samples must be positive, got %d", c.TraceSamples)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (logrus.Level, error) {
	switch c.LogLevel {
	case "debug":
		return logrus.DebugLevel, nil
	case "info", "":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, _ := c.Level()
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
