package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript bumps a fixed-window counter and starts the window on the
// first hit, in one round trip.
const incrementScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`

var incrementLua = redis.NewScript(incrementScript)

// Config holds login throttle tuning parameters. MaxAttempts <= 0 disables
// throttling.
type Config struct {
	Prefix           string
	MaxAttempts      int
	Cooldown         time.Duration
	EnableIPThrottle bool
}

// Limiter counts failed logins per username and, optionally, per client IP.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a login [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Enabled reports whether the limiter enforces anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.config.MaxAttempts > 0
}

func (l *Limiter) userKey(username string) string {
	return l.config.Prefix + "auth:login:limit:" + strings.ToLower(username)
}

func (l *Limiter) ipKey(ip string) string {
	return l.config.Prefix + "auth:login:limit:ip:" + ip
}

func (l *Limiter) keys(username, ip string) []string {
	keys := []string{l.userKey(username)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, l.ipKey(ip))
	}
	return keys
}

// Check returns ErrRateLimited once either counter has reached the budget.
func (l *Limiter) Check(ctx context.Context, username, ip string) error {
	if !l.Enabled() {
		return nil
	}
	values, err := l.redis.MGet(ctx, l.keys(username, ip)...).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		count, err := strconv.Atoi(s)
		if err != nil {
			continue
		}
		if count >= l.config.MaxAttempts {
			return ErrRateLimited
		}
	}
	return nil
}

// RecordFailure counts one failed attempt. It returns ErrRateLimited when
// this attempt exhausted the budget.
func (l *Limiter) RecordFailure(ctx context.Context, username, ip string) error {
	if !l.Enabled() {
		return nil
	}
	limited := false
	for _, key := range l.keys(username, ip) {
		count, err := incrementLua.Run(ctx, l.redis, []string{key}, l.config.Cooldown.Milliseconds()).Int64()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if count >= int64(l.config.MaxAttempts) {
			limited = true
		}
	}
	if limited {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the counters after a successful login.
func (l *Limiter) Reset(ctx context.Context, username, ip string) error {
	if !l.Enabled() {
		return nil
	}
	if err := l.redis.Del(ctx, l.keys(username, ip)...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the failed-attempt count for username. Missing keys
// report zero.
func (l *Limiter) Attempts(ctx context.Context, username string) (int, error) {
	count, err := l.redis.Get(ctx, l.userKey(username)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}
