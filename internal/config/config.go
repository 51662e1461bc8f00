// Package config loads server configuration from an optional YAML file and FABTRACK_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	DB        DBConfig        `yaml:"db"`
	Log       LogConfig       `yaml:"log"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Transport TransportConfig `yaml:"transport"`
	Engine    EngineConfig    `yaml:"engine"`
	Auth      AuthConfig      `yaml:"auth"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type CatalogConfig struct {
	Path string `yaml:"path"`
}

type TransportConfig struct {
	Mode string `yaml:"mode"`
}

type EngineConfig struct {
	MaxRetries      int           `yaml:"max_retries"`
	ScanDedupWindow time.Duration `yaml:"scan_dedup_window"`
}

type AuthConfig struct {
	Enabled bool     `yaml:"enabled"`
	Keys    []APIKey `yaml:"keys"`
}

// APIKey maps a bearer token to an actor and its permission keys.
type APIKey struct {
	Token       string   `yaml:"token"`
	ActorID     string   `yaml:"actor"`
	Permissions []string `yaml:"permissions"`
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DB: DBConfig{
			Path: "fabtrack.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Catalog: CatalogConfig{
			Path: "configs/catalog.yaml",
		},
		Transport: TransportConfig{
			Mode: "http",
		},
		Engine: EngineConfig{
			MaxRetries:      3,
			ScanDedupWindow: 10 * time.Minute,
		},
		Auth: AuthConfig{
			Enabled: true,
		},
	}

	if path := os.Getenv("FABTRACK_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if host := os.Getenv("FABTRACK_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("FABTRACK_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FABTRACK_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if dbPath := os.Getenv("FABTRACK_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if level := os.Getenv("FABTRACK_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if catalogPath := os.Getenv("FABTRACK_CATALOG_PATH"); catalogPath != "" {
		cfg.Catalog.Path = catalogPath
	}
	if mode := os.Getenv("FABTRACK_TRANSPORT"); mode != "" {
		cfg.Transport.Mode = mode
	}
	if enabled := os.Getenv("FABTRACK_AUTH_ENABLED"); enabled != "" {
		v, err := strconv.ParseBool(enabled)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FABTRACK_AUTH_ENABLED: %w", err)
		}
		cfg.Auth.Enabled = v
	}
	if retries := os.Getenv("FABTRACK_MAX_RETRIES"); retries != "" {
		n, err := strconv.Atoi(retries)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FABTRACK_MAX_RETRIES: %w", err)
		}
		cfg.Engine.MaxRetries = n
	}
	if window := os.Getenv("FABTRACK_SCAN_DEDUP_WINDOW"); window != "" {
		d, err := time.ParseDuration(window)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FABTRACK_SCAN_DEDUP_WINDOW: %w", err)
		}
		cfg.Engine.ScanDedupWindow = d
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Transport.Mode {
	case "http", "stdio":
	default:
		return fmt.Errorf("invalid transport mode %q: want http or stdio", c.Transport.Mode)
	}
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must not be negative")
	}
	if c.Engine.ScanDedupWindow < 0 {
		return fmt.Errorf("engine.scan_dedup_window must not be negative")
	}
	for i, k := range c.Auth.Keys {
		if strings.TrimSpace(k.Token) == "" || strings.TrimSpace(k.ActorID) == "" {
			return fmt.Errorf("auth.keys[%d]: token and actor are required", i)
		}
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
