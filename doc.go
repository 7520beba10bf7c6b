// Package goSession provides a Redis-backed session engine for dual-token
// (access/refresh) authentication.
//
// Engine methods are safe to call from multiple goroutines once built with
// [Builder.Build].
//
// # Sessions
//
// Login issues an HS256 access token and a refresh token. The refresh token's
// jti names a session record in Redis; the access token carries it in its
// "sid" claim. Each refresh consumes that record in one atomic script, so a
// refresh token works exactly once, and a second presentation is reported as
// ErrReuseDetected and revokes the device binding it came from.
//
// One session is live per user (or per user and device, see
// SessionConfig.Scope). A new login evicts the previous record, and
// Authenticate rejects access tokens whose sid is no longer the active one.
//
// # Architecture boundaries
//
// The root package holds the public surface: [Engine], [Builder], [Config],
// the collaborator interfaces and the error sentinels. Flow orchestration
// lives in internal/flows, Redis primitives in session, tokens in jwt,
// permission caching in permission and HTTP integration in middleware.
//
// # Errors
//
// Every failure matches one of the exported sentinels with errors.Is. Use
// [PublicMessage] for client-facing text: it never reveals which check
// failed.
package goSession
