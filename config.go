package goSession

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/password"
	"github.com/MrEthical07/goSession/session"
)

// Config holds every tunable of the Engine.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	JWT        JWTConfig
	Session    SessionConfig
	Permission PermissionConfig
	Security   SecurityConfig
	Password   PasswordConfig
	Filter     FilterConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the HS256 token codec.
type JWTConfig struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Audience   string
	Leeway     time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures session records and pointers in Redis.
type SessionConfig struct {
	// KeyPrefix namespaces every key written by the engine.
	KeyPrefix string
	// Scope is "user" (one live session per user) or "device".
	Scope string
	// ConsumedTombstoneTTL keeps consumed refresh records for this long so a
	// replay can be told apart from an expired token. Zero disables it.
	ConsumedTombstoneTTL time.Duration
}

/*
====================================
PERMISSION CONFIG
====================================
*/

// PermissionConfig configures the per-user permission cache.
type PermissionConfig struct {
	CacheTTL time.Duration
	// PopulateOnLogin resolves and caches permissions right after login.
	PopulateOnLogin bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig configures request validation and the login throttle.
type SecurityConfig struct {
	// MaxLoginAttempts failed logins are allowed per LoginCooldown window.
	// Zero disables the throttle.
	MaxLoginAttempts   int
	LoginCooldown      time.Duration
	EnableIPThrottle   bool
	MaxDeviceIDLength  int
	AllowedClientTypes []string
	DefaultClientType  string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig sets the argon2id parameters for new hashes.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
FILTER CONFIG
====================================
*/

// FilterConfig lists request paths that skip authentication. Patterns use
// path.Match syntax; a trailing "/**" matches the whole subtree.
type FilterConfig struct {
	Whitelist []string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig configures in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults. JWT.Secret is left empty
// and must be set.
func DefaultConfig() Config {
	argon := password.DefaultArgon2Config()
	return Config{
		JWT: JWTConfig{
			AccessTTL:  30 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Leeway:     30 * time.Second,
		},
		Session: SessionConfig{
			Scope: string(session.ScopeUser),
		},
		Permission: PermissionConfig{
			CacheTTL:        7 * 24 * time.Hour,
			PopulateOnLogin: true,
		},
		Security: SecurityConfig{
			MaxLoginAttempts:   5,
			LoginCooldown:      15 * time.Minute,
			EnableIPThrottle:   true,
			MaxDeviceIDLength:  128,
			AllowedClientTypes: []string{ClientWeb, ClientApp, ClientMini, ClientH5, ClientOther},
			DefaultClientType:  ClientWeb,
		},
		Password: PasswordConfig{
			Memory:      argon.Memory,
			Time:        argon.Time,
			Parallelism: argon.Parallelism,
			SaltLength:  argon.SaltLength,
			KeyLength:   argon.KeyLength,
		},
		Filter: FilterConfig{
			Whitelist: []string{"/api/auth/login", "/api/auth/refresh", "/healthz", "/readyz", "/metrics"},
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(c Config) Config {
	out := c
	out.JWT.Secret = cloneBytes(c.JWT.Secret)
	out.Security.AllowedClientTypes = slices.Clone(c.Security.AllowedClientTypes)
	out.Filter.Whitelist = slices.Clone(c.Filter.Whitelist)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c PasswordConfig) argon2() password.Argon2Config {
	return password.Argon2Config{
		Memory:      c.Memory,
		Time:        c.Time,
		Parallelism: c.Parallelism,
		SaltLength:  c.SaltLength,
		KeyLength:   c.KeyLength,
	}
}

func (c JWTConfig) codec() jwt.Config {
	return jwt.Config{
		Secret:     c.Secret,
		AccessTTL:  c.AccessTTL,
		RefreshTTL: c.RefreshTTL,
		Issuer:     c.Issuer,
		Audience:   c.Audience,
		Leeway:     c.Leeway,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.Secret) < jwt.MinSecretBytes {
		return fmt.Errorf("JWT Secret must be at least %d bytes", jwt.MinSecretBytes)
	}
	if c.JWT.AccessTTL < jwt.MinAccessTTL {
		return errors.New("JWT AccessTTL must be >= 1m")
	}
	if c.JWT.RefreshTTL < jwt.MinRefreshTTL {
		return errors.New("JWT RefreshTTL must be >= 24h")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must exceed AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > jwt.MaxLeeway {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}

	// Session
	if !session.Scope(c.Session.Scope).Valid() {
		return fmt.Errorf("Session Scope %q must be \"user\" or \"device\"", c.Session.Scope)
	}
	if c.Session.ConsumedTombstoneTTL < 0 {
		return errors.New("Session ConsumedTombstoneTTL must be >= 0")
	}
	if strings.ContainsAny(c.Session.KeyPrefix, " \t\r\n") {
		return errors.New("Session KeyPrefix must not contain whitespace")
	}

	// Permission
	if c.Permission.CacheTTL <= 0 {
		return errors.New("Permission CacheTTL must be > 0")
	}

	// Security
	if c.Security.MaxLoginAttempts < 0 {
		return errors.New("Security MaxLoginAttempts must be >= 0")
	}
	if c.Security.MaxLoginAttempts > 0 && c.Security.LoginCooldown <= 0 {
		return errors.New("Security LoginCooldown must be > 0 when the throttle is enabled")
	}
	if c.Security.MaxDeviceIDLength <= 0 {
		return errors.New("Security MaxDeviceIDLength must be > 0")
	}
	if len(c.Security.AllowedClientTypes) == 0 {
		return errors.New("Security AllowedClientTypes must not be empty")
	}
	if !slices.Contains(c.Security.AllowedClientTypes, c.Security.DefaultClientType) {
		return errors.New("Security DefaultClientType must be one of AllowedClientTypes")
	}

	// Password
	if _, err := password.NewVerifier(c.Password.argon2()); err != nil {
		return fmt.Errorf("Password: %w", err)
	}

	// Filter
	for _, pattern := range c.Filter.Whitelist {
		if _, err := path.Match(strings.TrimSuffix(pattern, "/**"), "/"); err != nil {
			return fmt.Errorf("Filter Whitelist pattern %q: %w", pattern, err)
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
