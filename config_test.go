package goSession

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Cookie.Name != "PHPSESSID" {
		t.Fatalf("expected default cookie name PHPSESSID, got %q", cfg.Cookie.Name)
	}
	if cfg.Session.ExpirationSeconds != 86400 || cfg.Session.CSRFExpirationSeconds != 3600 {
		t.Fatalf("unexpected default lifetimes: %+v", cfg.Session)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name:      "empty table",
			mutate:    func(c *Config) { c.Session.Table = " " },
			wantValid: false,
		},
		{
			name:      "zero expiration",
			mutate:    func(c *Config) { c.Session.ExpirationSeconds = 0 },
			wantValid: false,
		},
		{
			name:      "negative csrf expiration",
			mutate:    func(c *Config) { c.Session.CSRFExpirationSeconds = -1 },
			wantValid: false,
		},
		{
			name:      "empty cookie name",
			mutate:    func(c *Config) { c.Cookie.Name = "" },
			wantValid: false,
		},
		{
			name:      "cookie name with space",
			mutate:    func(c *Config) { c.Cookie.Name = "my sid" },
			wantValid: false,
		},
		{
			name:      "cookie name with tab",
			mutate:    func(c *Config) { c.Cookie.Name = "sid\t" },
			wantValid: false,
		},
		{
			name:      "custom cookie name",
			mutate:    func(c *Config) { c.Cookie.Name = "app_session" },
			wantValid: true,
		},
		{
			name:      "short ids",
			mutate:    func(c *Config) { c.IDs.Bytes = 8 },
			wantValid: false,
		},
		{
			name:      "no check attempts",
			mutate:    func(c *Config) { c.IDs.CheckAttempts = 0 },
			wantValid: false,
		},
		{
			name:      "no workers",
			mutate:    func(c *Config) { c.WriteBack.Workers = 0 },
			wantValid: false,
		},
		{
			name:      "negative task timeout",
			mutate:    func(c *Config) { c.WriteBack.TaskTimeout = -time.Second },
			wantValid: false,
		},
		{
			name:      "blank redis prefix",
			mutate:    func(c *Config) { c.Cache.RedisPrefix = "" },
			wantValid: false,
		},
		{
			name:      "gc threshold out of range",
			mutate:    func(c *Config) { c.Durable.GCThreshold = 1 },
			wantValid: false,
		},
		{
			name:      "unknown log level",
			mutate:    func(c *Config) { c.Log.Level = "verbose" },
			wantValid: false,
		},
		{
			name:      "json log format",
			mutate:    func(c *Config) { c.Log.Format = "json" },
			wantValid: true,
		},
		{
			name:      "unknown log format",
			mutate:    func(c *Config) { c.Log.Format = "xml" },
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadConfigFromFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gosession.yaml")
	content := `
session:
  expiration_seconds: 1800
cookie:
  name: app_sid
  secure: true
write_back:
  workers: 2
  task_timeout: 5s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GOSESSION_SESSION__CSRF_EXPIRATION_SECONDS", "120")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Session.ExpirationSeconds != 1800 {
		t.Fatalf("expected expiration 1800, got %d", cfg.Session.ExpirationSeconds)
	}
	if cfg.Session.CSRFExpirationSeconds != 120 {
		t.Fatalf("expected env override 120, got %d", cfg.Session.CSRFExpirationSeconds)
	}
	if cfg.Cookie.Name != "app_sid" || !cfg.Cookie.Secure || !cfg.Cookie.HTTPOnly {
		t.Fatalf("unexpected cookie config: %+v", cfg.Cookie)
	}
	if cfg.WriteBack.Workers != 2 || cfg.WriteBack.TaskTimeout != 5*time.Second {
		t.Fatalf("unexpected write-back config: %+v", cfg.WriteBack)
	}
	if cfg.Session.Table != "sessions" {
		t.Fatalf("expected default table to survive, got %q", cfg.Session.Table)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("cookie:\n  name: \"bad name\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected invalid cookie name to be rejected")
	}
}
