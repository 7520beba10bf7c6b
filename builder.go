package goSession

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/goSession/internal/audit"
	internalflows "github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/password"
	"github.com/MrEthical07/goSession/permission"
	"github.com/MrEthical07/goSession/session"
)

// Builder assembles an Engine. A Builder produces at most one Engine.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	logger zerolog.Logger

	credentials CredentialLookup
	resolver    PermissionResolver
	status      AccountStatusCheck
	auditSink   AuditSink

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the shared Redis client. The Engine never closes it.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the logger for warnings and security events.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithCredentialLookup sets the user directory used by login.
func (b *Builder) WithCredentialLookup(lookup CredentialLookup) *Builder {
	b.credentials = lookup
	return b
}

// WithPermissionResolver sets how permission sets are computed on a cache miss.
func (b *Builder) WithPermissionResolver(resolver PermissionResolver) *Builder {
	b.resolver = resolver
	return b
}

// WithAccountStatusCheck sets the status source consulted on refresh.
// Without one, refresh reloads the credential by username.
func (b *Builder) WithAccountStatusCheck(check AccountStatusCheck) *Builder {
	b.status = check
	return b
}

// WithDirectory sets all three collaborators from one user store.
func (b *Builder) WithDirectory(dir Directory) *Builder {
	b.credentials = dir
	b.resolver = dir
	b.status = dir
	return b
}

// WithAuditSink sets the audit sink and enables the dispatcher.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine.
//
// A JWT secret shorter than 32 bytes, a missing Redis client or a missing
// CredentialLookup is a build error.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.credentials == nil {
		return nil, errors.New("credential lookup required")
	}

	// -------- TOKEN CODEC --------
	codec, err := jwt.NewCodec(cfg.JWT.codec())
	if err != nil {
		return nil, err
	}

	// -------- PASSWORD VERIFIER --------
	verifier, err := password.NewVerifier(cfg.Password.argon2())
	if err != nil {
		return nil, err
	}

	// -------- SESSION STORE --------
	store := session.NewStore(b.redis, cfg.Session.KeyPrefix)
	devices := session.NewDeviceManager(b.redis, store.Keys(), session.Scope(cfg.Session.Scope))

	engine := &Engine{
		config:      cloneConfig(cfg),
		logger:      b.logger.With().Str("component", "goSession").Logger(),
		codec:       codec,
		store:       store,
		devices:     devices,
		verifier:    verifier,
		credentials: b.credentials,
		status:      b.status,
		metrics:     NewMetrics(cfg.Metrics),
	}

	// -------- PERMISSION CACHE --------
	var resolver permission.Resolver = permission.ResolverFunc(func(context.Context, string) ([]string, error) {
		return []string{}, nil
	})
	if b.resolver != nil {
		resolver = b.resolver
	}
	engine.permissions = permission.NewCache(b.redis, resolver, permission.Config{
		Prefix: cfg.Session.KeyPrefix,
		TTL:    cfg.Permission.CacheTTL,
	}, permission.WithLogger(engine.logger), permission.WithObserver(engine.observePermissions))

	// -------- LOGIN THROTTLE --------
	engine.limiter = rate.New(b.redis, rate.Config{
		Prefix:           cfg.Session.KeyPrefix,
		MaxAttempts:      cfg.Security.MaxLoginAttempts,
		Cooldown:         cfg.Security.LoginCooldown,
		EnableIPThrottle: cfg.Security.EnableIPThrottle,
	})

	// -------- AUDIT --------
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	engine.flows = internalflows.New(engine.flowDeps())

	b.built = true
	return engine, nil
}

func (e *Engine) observePermissions(outcome permission.Outcome) {
	switch outcome {
	case permission.OutcomeHit:
		e.metricInc(MetricPermissionCacheHit)
	case permission.OutcomeMiss:
		e.metricInc(MetricPermissionCacheMiss)
	case permission.OutcomeDegraded:
		e.metricInc(MetricPermissionCacheDegraded)
	}
}
