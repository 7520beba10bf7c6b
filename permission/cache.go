package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultTTL is how long a cached permission set lives when Config.TTL is zero.
const DefaultTTL = 7 * 24 * time.Hour

// Resolver computes a user's permission codes from the authoritative source.
type Resolver interface {
	ResolvePermissions(ctx context.Context, userID string) ([]string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, userID string) ([]string, error)

// ResolvePermissions calls f.
func (f ResolverFunc) ResolvePermissions(ctx context.Context, userID string) ([]string, error) {
	return f(ctx, userID)
}

// Outcome classifies how a Get was served.
type Outcome int

const (
	// OutcomeHit means the cached set was returned.
	OutcomeHit Outcome = iota
	// OutcomeMiss means the set was resolved and written back.
	OutcomeMiss
	// OutcomeDegraded means Redis failed and the set was resolved without caching.
	OutcomeDegraded
)

// Config controls key naming and lifetime.
type Config struct {
	Prefix string
	TTL    time.Duration
}

// Cache is a read-through cache of permission codes keyed by user ID.
//
// Unlike the session stores, a Redis failure here is not fatal: the cache
// logs a warning and falls back to the resolver.
type Cache struct {
	redis    redis.UniversalClient
	resolver Resolver
	prefix   string
	ttl      time.Duration
	logger   zerolog.Logger
	observe  func(Outcome)
}

// Option customizes a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for degraded-path warnings.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// WithObserver registers a callback invoked once per Get with its outcome.
func WithObserver(fn func(Outcome)) Option {
	return func(c *Cache) { c.observe = fn }
}

// NewCache returns a Cache that resolves misses through resolver.
func NewCache(client redis.UniversalClient, resolver Resolver, cfg Config, opts ...Option) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		redis:    client,
		resolver: resolver,
		prefix:   cfg.Prefix,
		ttl:      ttl,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) key(userID string) string {
	return c.prefix + "perm:" + userID
}

// Get returns the permission codes for userID, resolving and repopulating on
// a miss. An error is returned only when the resolver itself fails.
func (c *Cache) Get(ctx context.Context, userID string) ([]string, error) {
	raw, err := c.redis.Get(ctx, c.key(userID)).Bytes()
	switch {
	case err == nil:
		var perms []string
		if jsonErr := json.Unmarshal(raw, &perms); jsonErr == nil {
			c.record(OutcomeHit)
			return perms, nil
		} else {
			c.logger.Warn().Err(jsonErr).Str("user_id", userID).Msg("permission cache entry unreadable, recomputing")
		}
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn().Err(err).Str("user_id", userID).Msg("permission cache unavailable, recomputing")
		perms, resolveErr := c.resolve(ctx, userID)
		if resolveErr != nil {
			return nil, resolveErr
		}
		c.record(OutcomeDegraded)
		return perms, nil
	}

	perms, err := c.resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := c.Populate(ctx, userID, perms); err != nil {
		c.logger.Warn().Err(err).Str("user_id", userID).Msg("permission cache write failed")
		c.record(OutcomeDegraded)
		return perms, nil
	}
	c.record(OutcomeMiss)
	return perms, nil
}

// Populate writes perms for userID with the configured TTL. A nil slice is
// stored as an empty set.
func (c *Cache) Populate(ctx context.Context, userID string, perms []string) error {
	if perms == nil {
		perms = []string{}
	}
	data, err := json.Marshal(perms)
	if err != nil {
		return err
	}
	if err := c.redis.Set(ctx, c.key(userID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("permission cache write: %w", err)
	}
	return nil
}

// Refresh resolves userID's permissions and writes them to the cache.
func (c *Cache) Refresh(ctx context.Context, userID string) ([]string, error) {
	perms, err := c.resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return perms, c.Populate(ctx, userID, perms)
}

// Invalidate drops the cached sets for userIDs.
func (c *Cache) Invalidate(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, c.key(id))
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("permission cache invalidate: %w", err)
	}
	return nil
}

func (c *Cache) resolve(ctx context.Context, userID string) ([]string, error) {
	if c.resolver == nil {
		return nil, errors.New("permission resolver not configured")
	}
	perms, err := c.resolver.ResolvePermissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve permissions for %s: %w", userID, err)
	}
	return perms, nil
}

func (c *Cache) record(outcome Outcome) {
	if c.observe != nil {
		c.observe(outcome)
	}
}
