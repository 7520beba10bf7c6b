package serverconfig

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	goSession "github.com/MrEthical07/goSession"
)

// Directory backends selectable through DIRECTORY.
const (
	DirectoryYAML     = "yaml"
	DirectoryPostgres = "postgres"
)

// Config holds runtime configuration for cmd/authd.
type Config struct {
	Addr            string        `env:"ADDR,default=:8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	LogFormat string `env:"LOG_FORMAT,default=console"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`

	RedisAddr     string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB,default=0"`

	Directory      string `env:"DIRECTORY,default=yaml"`
	DirectoryFile  string `env:"DIRECTORY_FILE,default=users.yaml"`
	DatabaseURL    string `env:"DATABASE_URL"`
	DatabaseSchema string `env:"DATABASE_SCHEMA,default=public"`

	JWTSecret  string        `env:"JWT_SECRET,required"`
	JWTIssuer  string        `env:"JWT_ISSUER"`
	JWTAud     string        `env:"JWT_AUDIENCE"`
	AccessTTL  time.Duration `env:"ACCESS_TOKEN_TTL,default=30m"`
	RefreshTTL time.Duration `env:"REFRESH_TOKEN_TTL,default=168h"`

	KeyPrefix            string        `env:"SESSION_KEY_PREFIX"`
	SessionScope         string        `env:"SESSION_SCOPE,default=user"`
	ConsumedTombstoneTTL time.Duration `env:"SESSION_TOMBSTONE_TTL,default=0s"`
	PermissionCacheTTL   time.Duration `env:"PERMISSION_CACHE_TTL,default=168h"`

	MaxLoginAttempts int           `env:"MAX_LOGIN_ATTEMPTS,default=5"`
	LoginCooldown    time.Duration `env:"LOGIN_COOLDOWN,default=15m"`

	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"`
	TrustedProxies   []string `env:"TRUSTED_PROXIES"`
	RequestsPerMin   int      `env:"RATE_LIMIT_PER_MINUTE,default=100"`
	ExtraWhitelist   []string `env:"AUTH_WHITELIST"`
	AuditLog         bool     `env:"AUDIT_LOG,default=true"`
	LatencyHistogram bool     `env:"METRICS_LATENCY_HISTOGRAMS,default=true"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME,default=gosession-authd"`
}

// Load reads envFiles (missing files are ignored) and then the process
// environment.
func Load(ctx context.Context, envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads configuration from l. Tests pass envconfig.MapLookuper.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings envconfig cannot express.
func (c Config) Validate() error {
	switch c.Directory {
	case DirectoryYAML:
		if strings.TrimSpace(c.DirectoryFile) == "" {
			return errors.New("DIRECTORY_FILE is required for the yaml directory")
		}
	case DirectoryPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("DATABASE_URL is required for the postgres directory")
		}
	default:
		return fmt.Errorf("unknown DIRECTORY %q", c.Directory)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat)
	}
	if c.RequestsPerMin <= 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must be positive")
	}
	return nil
}

// Engine maps the runtime settings onto the engine defaults.
func (c Config) Engine() goSession.Config {
	cfg := goSession.DefaultConfig()

	cfg.JWT.Secret = []byte(c.JWTSecret)
	cfg.JWT.Issuer = c.JWTIssuer
	cfg.JWT.Audience = c.JWTAud
	cfg.JWT.AccessTTL = c.AccessTTL
	cfg.JWT.RefreshTTL = c.RefreshTTL

	cfg.Session.KeyPrefix = c.KeyPrefix
	cfg.Session.Scope = c.SessionScope
	cfg.Session.ConsumedTombstoneTTL = c.ConsumedTombstoneTTL

	cfg.Permission.CacheTTL = c.PermissionCacheTTL

	cfg.Security.MaxLoginAttempts = c.MaxLoginAttempts
	cfg.Security.LoginCooldown = c.LoginCooldown

	cfg.Filter.Whitelist = append(cfg.Filter.Whitelist, c.ExtraWhitelist...)

	cfg.Audit.Enabled = c.AuditLog
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = c.LatencyHistogram

	return cfg
}
