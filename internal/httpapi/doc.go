// Package httpapi exposes the engine over HTTP for cmd/authd. Every body is
// an envelope {"code", "message", "data"}; failures carry the public message
// only.
package httpapi
