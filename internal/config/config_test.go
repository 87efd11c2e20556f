package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Database.Driver != "sqlite" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sluice.yaml")
	data := `
server:
  port: 9090
auth:
  max_login_attempts: 3
  lockout_duration: 30m
  session_timeout: 2h
database:
  driver: postgres
  dsn: postgres://localhost/sluice
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host default lost: %q", cfg.Server.Host)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %q, want postgres", cfg.Database.Driver)
	}

	p, err := cfg.Auth.Policy()
	if err != nil {
		t.Fatalf("Policy error: %v", err)
	}
	if p.MaxLoginAttempts != 3 {
		t.Errorf("MaxLoginAttempts = %d, want 3", p.MaxLoginAttempts)
	}
	if p.LockoutDuration != 30*time.Minute {
		t.Errorf("LockoutDuration = %v, want 30m", p.LockoutDuration)
	}
	if p.SessionTimeout != 2*time.Hour {
		t.Errorf("SessionTimeout = %v, want 2h", p.SessionTimeout)
	}
}

func TestPolicyRejectsBadDurations(t *testing.T) {
	a := AuthConfig{LockoutDuration: "fifteen minutes"}
	if _, err := a.Policy(); err == nil {
		t.Error("Policy accepted a malformed duration")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sluice.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load accepted malformed YAML")
	}
}
