// Package session provides the Redis-backed stores behind goSession: refresh
// records, consumed-token tombstones, active-session pointers and the access
// token blacklist.
//
// # Atomicity
//
// Consuming a refresh record and rebinding a device are each a single Lua
// script, so concurrent refresh or login attempts cannot both succeed against
// the same record or leave two live records for one scope.
//
// # What this package must NOT do
//
//   - Import goSession, jwt, or permission (no upward imports).
//   - Interpret token claims or decide authentication outcomes.
//   - Swallow backend errors: every failure surfaces as ErrRedisUnavailable.
package session
