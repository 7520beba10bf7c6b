package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/jwt"
)

// AuthenticateFailureKind classifies request authentication failures.
type AuthenticateFailureKind int

const (
	AuthenticateFailureNone AuthenticateFailureKind = iota
	AuthenticateFailureDecode
	AuthenticateFailureWrongType
	AuthenticateFailureExpired
	AuthenticateFailurePointerLookup
	AuthenticateFailureSuperseded
	AuthenticateFailureBlacklistLookup
	AuthenticateFailureRevoked
	AuthenticateFailurePermissions
)

// AuthenticateResult carries the verified claims and permissions.
type AuthenticateResult struct {
	Failure     AuthenticateFailureKind
	Err         error
	Claims      *jwt.Claims
	Permissions []string
}

// AuthenticateDeps captures per-request authentication dependencies.
type AuthenticateDeps struct {
	Decode        func(raw string) (*jwt.Claims, error)
	Now           func() time.Time
	ActivePointer func(ctx context.Context, userID, deviceID string) (string, bool, error)
	IsBlacklisted func(ctx context.Context, jti string) (bool, error)
	Permissions   func(ctx context.Context, userID string) ([]string, error)
}

// RunAuthenticate checks an access token in a fixed order: decode, type,
// expiry, active-session pointer, blacklist, permissions.
func RunAuthenticate(ctx context.Context, token string, deps AuthenticateDeps) AuthenticateResult {
	claims, err := deps.Decode(token)
	if err != nil {
		return AuthenticateResult{Failure: AuthenticateFailureDecode, Err: err}
	}
	if claims.Type != jwt.TypeAccess {
		return AuthenticateResult{Failure: AuthenticateFailureWrongType, Claims: claims}
	}

	now := time.Now()
	if deps.Now != nil {
		now = deps.Now()
	}
	if !now.Before(claims.ExpiresAt) {
		return AuthenticateResult{Failure: AuthenticateFailureExpired, Claims: claims}
	}

	active, found, err := deps.ActivePointer(ctx, claims.UserID, claims.DeviceID)
	if err != nil {
		return AuthenticateResult{Failure: AuthenticateFailurePointerLookup, Err: err, Claims: claims}
	}
	if !found || claims.SessionID == "" || active != claims.SessionID {
		return AuthenticateResult{Failure: AuthenticateFailureSuperseded, Claims: claims}
	}

	revoked, err := deps.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return AuthenticateResult{Failure: AuthenticateFailureBlacklistLookup, Err: err, Claims: claims}
	}
	if revoked {
		return AuthenticateResult{Failure: AuthenticateFailureRevoked, Claims: claims}
	}

	perms, err := deps.Permissions(ctx, claims.UserID)
	if err != nil {
		return AuthenticateResult{Failure: AuthenticateFailurePermissions, Err: err, Claims: claims}
	}

	return AuthenticateResult{Failure: AuthenticateFailureNone, Claims: claims, Permissions: perms}
}
