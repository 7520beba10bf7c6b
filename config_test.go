package goSession

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigNeedsSecret(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "Secret") {
		t.Fatalf("expected secret error, got %v", err)
	}

	cfg.JWT.Secret = []byte(strings.Repeat("k", 32))
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults with secret should validate: %v", err)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"short secret":        func(c *Config) { c.JWT.Secret = []byte("short") },
		"access below 1m":     func(c *Config) { c.JWT.AccessTTL = 30 * time.Second },
		"refresh below 24h":   func(c *Config) { c.JWT.RefreshTTL = time.Hour },
		"refresh <= access":   func(c *Config) { c.JWT.AccessTTL = 48 * time.Hour; c.JWT.RefreshTTL = 48 * time.Hour },
		"leeway too large":    func(c *Config) { c.JWT.Leeway = 5 * time.Minute },
		"unknown scope":       func(c *Config) { c.Session.Scope = "tenant" },
		"negative tombstone":  func(c *Config) { c.Session.ConsumedTombstoneTTL = -time.Second },
		"prefix whitespace":   func(c *Config) { c.Session.KeyPrefix = "a b:" },
		"zero cache ttl":      func(c *Config) { c.Permission.CacheTTL = 0 },
		"negative attempts":   func(c *Config) { c.Security.MaxLoginAttempts = -1 },
		"zero cooldown":       func(c *Config) { c.Security.LoginCooldown = 0 },
		"zero device length":  func(c *Config) { c.Security.MaxDeviceIDLength = 0 },
		"no client types":     func(c *Config) { c.Security.AllowedClientTypes = nil },
		"default not allowed": func(c *Config) { c.Security.DefaultClientType = "TV" },
		"weak argon2":         func(c *Config) { c.Password.Memory = 1024 },
		"bad whitelist":       func(c *Config) { c.Filter.Whitelist = []string{"/api/["} },
		"audit no buffer":     func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 },
	}

	for name, mutate := range cases {
		cfg := testConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestCloneConfigIsDeep(t *testing.T) {
	cfg := testConfig()
	clone := cloneConfig(cfg)

	clone.JWT.Secret[0] = 'X'
	clone.Filter.Whitelist[0] = "/changed"
	clone.Security.AllowedClientTypes[0] = "CHANGED"

	if cfg.JWT.Secret[0] == 'X' || cfg.Filter.Whitelist[0] == "/changed" || cfg.Security.AllowedClientTypes[0] == "CHANGED" {
		t.Fatal("cloneConfig must not share slices")
	}
}

func TestBuilderErrors(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	defer rdb.Close()
	dir := newMemoryDirectory(t)

	if _, err := New().WithConfig(testConfig()).WithDirectory(dir).Build(); err == nil {
		t.Fatal("expected missing redis error")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected missing credential lookup error")
	}

	short := testConfig()
	short.JWT.Secret = []byte("too-short")
	if _, err := New().WithConfig(short).WithRedis(rdb).WithDirectory(dir).Build(); err == nil {
		t.Fatal("expected short secret to fail the build")
	}

	b := New().WithConfig(testConfig()).WithRedis(rdb).WithDirectory(dir)
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected builder reuse to fail")
	}
}

func TestBuilderCopiesConfig(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	defer rdb.Close()

	cfg := testConfig()
	engine, err := New().WithConfig(cfg).WithRedis(rdb).WithDirectory(newMemoryDirectory(t)).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	cfg.JWT.Secret[0] = 'X'
	if engine.Config().JWT.Secret[0] == 'X' {
		t.Fatal("engine must not alias the caller's config")
	}
}
