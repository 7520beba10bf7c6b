package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/jwt"
)

// Deps groups the per-flow dependency sets wired once by the root engine.
type Deps struct {
	Login        LoginDeps
	Refresh      RefreshDeps
	Logout       LogoutDeps
	Authenticate AuthenticateDeps
}

// SessionWriter is the subset of session.Store used to persist and drop records.
type SessionWriter interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) (int64, error)
}

// DeviceBinder moves the active-session pointers to a new refresh jti.
type DeviceBinder interface {
	Bind(ctx context.Context, userID, deviceID, refreshJTI string, ttl time.Duration) ([]string, error)
}

// PairIssuer issues an access/refresh pair.
type PairIssuer func(subject string, claims jwt.Claims) (jwt.Pair, error)

// Warner receives best-effort failures that do not abort a flow.
type Warner func(msg string, err error)

func warn(w Warner, msg string, err error) {
	if w != nil && err != nil {
		w(msg, err)
	}
}
