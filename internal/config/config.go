// Package config defines the sluice.yaml configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sluicedb/sluice/internal/auth"
)

// Config is the top-level sluice configuration file.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	CORSOrigins        []string `yaml:"cors_origins"`
	LoginRatePerMinute int      `yaml:"login_rate_per_minute"`
}

// AuthConfig controls the lockout and session policy. Durations are Go
// duration strings ("15m", "1h").
type AuthConfig struct {
	MaxLoginAttempts int    `yaml:"max_login_attempts"`
	LockoutDuration  string `yaml:"lockout_duration"`
	SessionTimeout   string `yaml:"session_timeout"`
}

// DatabaseConfig selects the credential store backend. Driver is "sqlite"
// (default, DSN optional) or "postgres" (DSN required).
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the stock configuration.
func Default() Config {
	p := auth.DefaultPolicy()
	return Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			CORSOrigins:        []string{"*"},
			LoginRatePerMinute: 30,
		},
		Auth: AuthConfig{
			MaxLoginAttempts: p.MaxLoginAttempts,
			LockoutDuration:  p.LockoutDuration.String(),
			SessionTimeout:   p.SessionTimeout.String(),
		},
		Database: DatabaseConfig{Driver: "sqlite"},
		Logging:  LoggingConfig{Level: "info"},
	}
}

// Load reads path and unmarshals it over the defaults. A missing file is
// not an error: the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Policy converts the auth section into an engine policy.
func (a AuthConfig) Policy() (auth.Policy, error) {
	p := auth.Policy{MaxLoginAttempts: a.MaxLoginAttempts}

	var err error
	if a.LockoutDuration != "" {
		if p.LockoutDuration, err = time.ParseDuration(a.LockoutDuration); err != nil {
			return p, fmt.Errorf("invalid lockout_duration %q: %w", a.LockoutDuration, err)
		}
	}
	if a.SessionTimeout != "" {
		if p.SessionTimeout, err = time.ParseDuration(a.SessionTimeout); err != nil {
			return p, fmt.Errorf("invalid session_timeout %q: %w", a.SessionTimeout, err)
		}
	}
	return p, nil
}
