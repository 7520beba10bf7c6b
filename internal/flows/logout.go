package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/session"
)

// LogoutInput identifies the two tokens of one session.
type LogoutInput struct {
	AccessJTI       string
	AccessRemaining time.Duration
	RefreshJTI      string
	UserID          string
	DeviceID        string
}

// LogoutStore is the subset of session.Store used by logout.
type LogoutStore interface {
	Blacklist(ctx context.Context, jti string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, bool, error)
	Delete(ctx context.Context, keys ...string) (int64, error)
}

// PointerReleaser drops pointers that still reference a jti.
type PointerReleaser interface {
	Release(ctx context.Context, userID, deviceID, jti string) error
}

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	Store   LogoutStore
	Devices PointerReleaser
	Keys    session.Keys
	Warn    Warner
}

// LogoutResult reports what was revoked.
type LogoutResult struct {
	RefreshBlacklisted bool
	RecordDeleted      bool
}

// RunLogout blacklists both jti values for their remaining lifetimes and
// deletes the refresh record. Any store failure aborts with an error.
func RunLogout(ctx context.Context, in LogoutInput, deps LogoutDeps) (LogoutResult, error) {
	var res LogoutResult

	if err := deps.Store.Blacklist(ctx, in.AccessJTI, in.AccessRemaining); err != nil {
		return res, err
	}
	if in.RefreshJTI == "" {
		return res, nil
	}

	key := deps.Keys.Refresh(in.RefreshJTI)
	remaining, live, err := deps.Store.TTL(ctx, key)
	if err != nil {
		return res, err
	}
	if live {
		if err := deps.Store.Blacklist(ctx, in.RefreshJTI, remaining); err != nil {
			return res, err
		}
		res.RefreshBlacklisted = true
	}

	n, err := deps.Store.Delete(ctx, key)
	if err != nil {
		return res, err
	}
	res.RecordDeleted = n > 0

	if deps.Devices != nil {
		warn(deps.Warn, "session pointer release failed", deps.Devices.Release(ctx, in.UserID, in.DeviceID, in.RefreshJTI))
	}
	return res, nil
}
