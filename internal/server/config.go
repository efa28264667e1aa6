package server

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"gravecore/internal/blob"
	"gravecore/internal/core"
	"gravecore/internal/infra/audit"
	"gravecore/internal/infra/graph"
	"gravecore/internal/infra/mq"
	"gravecore/pkg/log"
)

// Config holds all configuration values
type Config struct {
	Server  ServerConfig       `toml:"server"`
	Log     log.Config         `toml:"log"`
	Storage core.StorageConfig `toml:"storage"`
	Blob    blob.Config        `toml:"blob"`
	Events  mq.Config          `toml:"events"`
	Audit   audit.Config       `toml:"audit"`
	Graph   graph.Config       `toml:"graph"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	ReadTimeout  string `toml:"read_timeout"`
	WriteTimeout string `toml:"write_timeout"`
}

// Validate checks server configuration
func (s *ServerConfig) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("port is required and must be between 1 and 65535")
	}
	for name, value := range map[string]string{"read_timeout": s.ReadTimeout, "write_timeout": s.WriteTimeout} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s is invalid: %w", name, err)
		}
	}
	return nil
}

func (s *ServerConfig) timeouts(defRead, defWrite time.Duration) (time.Duration, time.Duration) {
	read, write := defRead, defWrite
	if d, err := time.ParseDuration(s.ReadTimeout); err == nil {
		read = d
	}
	if d, err := time.ParseDuration(s.WriteTimeout); err == nil {
		write = d
	}
	return read, write
}

// Validate checks all configuration fields
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if err := c.Blob.Validate(); err != nil {
		return fmt.Errorf("blob: %w", err)
	}

	if err := c.Events.Validate(); err != nil {
		return fmt.Errorf("events: %w", err)
	}

	if err := c.Audit.Validate(); err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	if err := c.Graph.Validate(); err != nil {
		return fmt.Errorf("graph: %w", err)
	}

	return nil
}

// LoadConfig reads and parses the configuration file. GRAVECORE_* environment
// variables override the storage and blob sections.
func LoadConfig(filename string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig decodes TOML, applies environment overrides and validates.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}

	cfg.Storage = cfg.Storage.ApplyEnv()
	cfg.Blob = cfg.Blob.ApplyEnv()
	if cfg.Events.Topic == "" {
		cfg.Events.Topic = core.DefaultChangeTopic
	}
	if cfg.Events.Group == "" {
		cfg.Events.Group = mq.DefaultConsumerGroup
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}
