package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every backend failure returned by this package.
var ErrRedisUnavailable = errors.New("redis unavailable")

// getAndDeleteScript reads and removes KEYS[1] in one step. When KEYS[2] is
// given and ARGV[1] is a positive millisecond TTL, the consumed value is kept
// under KEYS[2] as a tombstone.
const getAndDeleteScript = `
local value = redis.call("GET", KEYS[1])
if not value then
  return false
end
redis.call("DEL", KEYS[1])
local ttl = tonumber(ARGV[1] or "0")
if KEYS[2] and ttl and ttl > 0 then
  redis.call("SET", KEYS[2], value, "PX", ttl)
end
return value
`

var getAndDeleteLua = redis.NewScript(getAndDeleteScript)

// Store is the Redis key-value surface used for session records, pointers
// and the blacklist.
type Store struct {
	redis redis.UniversalClient
	keys  Keys
}

// NewStore creates a [Store] backed by the given Redis client. prefix is
// prepended to every key.
func NewStore(redis redis.UniversalClient, prefix string) *Store {
	return &Store{
		redis: redis,
		keys:  NewKeys(prefix),
	}
}

// Keys returns the key builder bound to this store.
func (s *Store) Keys() Keys { return s.keys }

// Client returns the underlying Redis client.
func (s *Store) Client() redis.UniversalClient { return s.redis }

// Put writes value under key with ttl. Any failure is returned; callers rely
// on a nil error meaning the value is durable.
//
//	Performance: 1 Redis SET.
func (s *Store) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("session put requires a positive TTL")
	}
	status, err := s.redis.Set(ctx, key, value, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if status != "OK" {
		return fmt.Errorf("%w: unexpected SET reply %q", ErrRedisUnavailable, status)
	}
	return nil
}

// Get reads key. The boolean reports presence.
//
//	Performance: 1 Redis GET.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return value, true, nil
}

// GetAndDelete atomically reads and removes key. Of any number of concurrent
// callers on the same key, at most one observes the value.
//
//	Performance: 1 EVALSHA.
func (s *Store) GetAndDelete(ctx context.Context, key string) (string, bool, error) {
	return s.getAndDelete(ctx, []string{key}, 0)
}

// GetAndDeleteWithTombstone behaves like GetAndDelete and, in the same atomic
// step, copies the consumed value to tombstoneKey for tombstoneTTL.
func (s *Store) GetAndDeleteWithTombstone(ctx context.Context, key, tombstoneKey string, tombstoneTTL time.Duration) (string, bool, error) {
	if tombstoneKey == "" || tombstoneTTL <= 0 {
		return s.GetAndDelete(ctx, key)
	}
	return s.getAndDelete(ctx, []string{key, tombstoneKey}, tombstoneTTL.Milliseconds())
}

func (s *Store) getAndDelete(ctx context.Context, keys []string, tombstoneMillis int64) (string, bool, error) {
	value, err := getAndDeleteLua.Run(ctx, s.redis, keys, tombstoneMillis).Text()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return value, true, nil
}

// Delete removes keys and returns how many existed.
func (s *Store) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.redis.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.redis.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// TTL returns the remaining lifetime of key. The boolean is false when the
// key is absent or has no expiry.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	ttl, err := s.redis.PTTL(ctx, key).Result()
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	// PTTL reports -2 for a missing key and -1 for a key without expiry.
	if ttl < 0 {
		return 0, false, nil
	}
	return ttl, true, nil
}

// Blacklist marks jti as revoked for ttl. A non-positive ttl is a no-op: the
// token has already expired and needs no entry.
func (s *Store) Blacklist(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	return s.Put(ctx, s.keys.Blacklist(jti), "1", ttl)
}

// IsBlacklisted reports whether jti has been revoked.
func (s *Store) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	return s.Exists(ctx, s.keys.Blacklist(jti))
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
