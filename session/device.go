package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Scope selects which pointer decides the previous session evicted on login.
type Scope string

const (
	// ScopeUser keeps one live session per user across all devices.
	ScopeUser Scope = "user"
	// ScopeDevice keeps one live session per (user, device).
	ScopeDevice Scope = "device"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeUser || s == ScopeDevice
}

// bindScript points both the user and device pointers at ARGV[1] and deletes
// the record the scope pointer (KEYS[1]) referenced before, if any.
//
//	KEYS[1] scope pointer, KEYS[2] user pointer, KEYS[3] device pointer
//	ARGV[1] new jti, ARGV[2] ttl in ms, ARGV[3] refresh key prefix
const bindScript = `
local evicted = {}
local previous = redis.call("GET", KEYS[1])
if previous and previous ~= ARGV[1] then
  if redis.call("DEL", ARGV[3] .. previous) == 1 then
    table.insert(evicted, previous)
  end
end
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[2])
redis.call("SET", KEYS[3], ARGV[1], "PX", ARGV[2])
return evicted
`

var bindLua = redis.NewScript(bindScript)

// revokeScript removes the device pointer and its record. The user pointer is
// removed only while it still references the same jti. A non-empty ARGV[2]
// makes the whole revoke conditional on the device pointer holding it.
//
//	KEYS[1] device pointer, KEYS[2] user pointer
//	ARGV[1] refresh key prefix, ARGV[2] expected jti or ""
const revokeScript = `
local jti = redis.call("GET", KEYS[1])
if not jti then
  return false
end
if ARGV[2] ~= "" and jti ~= ARGV[2] then
  return false
end
redis.call("DEL", KEYS[1])
redis.call("DEL", ARGV[1] .. jti)
if redis.call("GET", KEYS[2]) == jti then
  redis.call("DEL", KEYS[2])
end
return jti
`

var revokeLua = redis.NewScript(revokeScript)

// releaseScript drops each pointer in KEYS that still references ARGV[1].
const releaseScript = `
local released = 0
for i, key in ipairs(KEYS) do
  if redis.call("GET", key) == ARGV[1] then
    redis.call("DEL", key)
    released = released + 1
  end
end
return released
`

var releaseLua = redis.NewScript(releaseScript)

// DeviceManager maintains the active-session pointers for users and devices.
type DeviceManager struct {
	redis redis.UniversalClient
	keys  Keys
	scope Scope
}

// NewDeviceManager returns a manager for the given scope. An unknown scope
// falls back to ScopeUser.
func NewDeviceManager(client redis.UniversalClient, keys Keys, scope Scope) *DeviceManager {
	if !scope.Valid() {
		scope = ScopeUser
	}
	return &DeviceManager{redis: client, keys: keys, scope: scope}
}

// Scope returns the configured pointer scope.
func (m *DeviceManager) Scope() Scope { return m.scope }

func (m *DeviceManager) scopeKey(userID, deviceID string) string {
	if m.scope == ScopeDevice {
		return m.keys.Device(userID, deviceID)
	}
	return m.keys.Active(userID)
}

// Bind makes refreshJTI the live session for (userID, deviceID) and returns
// the jti values whose records were evicted. ttl should equal the refresh
// token lifetime.
//
//	Performance: 1 EVALSHA.
func (m *DeviceManager) Bind(ctx context.Context, userID, deviceID, refreshJTI string, ttl time.Duration) ([]string, error) {
	if userID == "" || deviceID == "" || refreshJTI == "" {
		return nil, errors.New("bind requires user, device and jti")
	}
	if ttl <= 0 {
		return nil, errors.New("bind requires a positive TTL")
	}

	keys := []string{m.scopeKey(userID, deviceID), m.keys.Active(userID), m.keys.Device(userID, deviceID)}
	evicted, err := bindLua.Run(ctx, m.redis, keys, refreshJTI, ttl.Milliseconds(), m.keys.RefreshPrefix()).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return evicted, nil
}

// Active returns the refresh jti the scope pointer currently holds.
func (m *DeviceManager) Active(ctx context.Context, userID, deviceID string) (string, bool, error) {
	jti, err := m.redis.Get(ctx, m.scopeKey(userID, deviceID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return jti, true, nil
}

// Revoke removes the device binding and the record it points to. It returns
// the revoked jti, or "" when the device had no binding.
func (m *DeviceManager) Revoke(ctx context.Context, userID, deviceID string) (string, error) {
	return m.revoke(ctx, userID, deviceID, "")
}

// RevokeIfBound revokes the device binding only while it still references
// jti. A binding that already moved on to a newer session is left alone.
func (m *DeviceManager) RevokeIfBound(ctx context.Context, userID, deviceID, jti string) (string, error) {
	if jti == "" {
		return "", nil
	}
	return m.revoke(ctx, userID, deviceID, jti)
}

func (m *DeviceManager) revoke(ctx context.Context, userID, deviceID, expected string) (string, error) {
	if userID == "" || deviceID == "" {
		return "", nil
	}
	keys := []string{m.keys.Device(userID, deviceID), m.keys.Active(userID)}
	jti, err := revokeLua.Run(ctx, m.redis, keys, m.keys.RefreshPrefix(), expected).Text()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return jti, nil
}

// Release drops the user and device pointers that still reference jti. It is
// used on logout, where a newer session bound in the meantime must survive.
func (m *DeviceManager) Release(ctx context.Context, userID, deviceID, jti string) error {
	if userID == "" || jti == "" {
		return nil
	}
	keys := []string{m.keys.Active(userID)}
	if deviceID != "" {
		keys = append(keys, m.keys.Device(userID, deviceID))
	}
	if err := releaseLua.Run(ctx, m.redis, keys, jti).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
