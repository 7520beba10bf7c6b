package serverconfig

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET": testSecret,
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Directory != DirectoryYAML || cfg.AccessTTL != 30*time.Minute {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	engine := cfg.Engine()
	if string(engine.JWT.Secret) != testSecret {
		t.Fatal("secret not mapped")
	}
	if err := engine.Validate(); err != nil {
		t.Fatalf("engine config from defaults must validate: %v", err)
	}
	if len(cfg.AllowedOrigins) != 0 || len(cfg.TrustedProxies) != 0 {
		t.Fatalf("CORS origins and trusted proxies must be opt-in, got %v %v", cfg.AllowedOrigins, cfg.TrustedProxies)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET":            testSecret,
		"SESSION_SCOPE":         "device",
		"SESSION_TOMBSTONE_TTL": "5m",
		"AUTH_WHITELIST":        "/public/**,/docs",
		"DIRECTORY":             DirectoryPostgres,
		"DATABASE_URL":          "postgres://localhost/gosession",
		"LOG_FORMAT":            "json",
		"TRUSTED_PROXIES":       "10.0.0.0/8,127.0.0.1",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	engine := cfg.Engine()
	if engine.Session.Scope != "device" || engine.Session.ConsumedTombstoneTTL != 5*time.Minute {
		t.Fatalf("session settings not mapped: %+v", engine.Session)
	}
	joined := strings.Join(engine.Filter.Whitelist, " ")
	if !strings.Contains(joined, "/public/**") || !strings.Contains(joined, "/api/auth/login") {
		t.Fatalf("whitelist should extend the defaults, got %v", engine.Filter.Whitelist)
	}
	if len(cfg.TrustedProxies) != 2 || cfg.TrustedProxies[0] != "10.0.0.0/8" {
		t.Fatalf("trusted proxies not parsed: %v", cfg.TrustedProxies)
	}
}

func TestLoadWithRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret": {},
		"unknown directory": {
			"JWT_SECRET": testSecret,
			"DIRECTORY":  "ldap",
		},
		"postgres without url": {
			"JWT_SECRET": testSecret,
			"DIRECTORY":  DirectoryPostgres,
		},
		"bad log format": {
			"JWT_SECRET": testSecret,
			"LOG_FORMAT": "xml",
		},
	}
	for name, env := range cases {
		if _, err := LoadWith(context.Background(), envconfig.MapLookuper(env)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("JWT_SECRET="+testSecret+"\nADDR=:9191\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")
	t.Setenv("ADDR", "")
	os.Unsetenv("ADDR")

	cfg, err := Load(context.Background(), path, filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9191" {
		t.Fatalf("expected addr from env file, got %q", cfg.Addr)
	}
}
