// Package config loads the kernel service configuration: a YAML file,
// optionally a .env file, and environment overrides on top.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// DefaultPath is where binaries look for the config file.
const DefaultPath = "config/kernel.yaml"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Scenario ScenarioConfig `yaml:"scenario"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig points at the run audit store. An empty URL disables it.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"` // 0 keeps the pool default
}

// ScenarioConfig bounds the scenario engine. Workers <= 0 means one per CPU.
type ScenarioConfig struct {
	Workers int `yaml:"workers"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults, then applies KERNEL_ADDR, DATABASE_URL,
// SCENARIO_WORKERS and LOG_LEVEL from the environment. A missing file is not
// an error; a malformed one is.
func Load(path string) (Config, error) {
	// .env is optional; in production the environment is set directly.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("KERNEL_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("SCENARIO_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SCENARIO_WORKERS %q: %w", v, err)
		}
		c.Scenario.Workers = n
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate rejects settings no binary could start with.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Database.MaxConns < 0 {
		return fmt.Errorf("database.max_conns must be >= 0, got %d", c.Database.MaxConns)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}
