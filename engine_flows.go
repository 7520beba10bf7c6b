package goSession

import (
	"context"
	"errors"

	internalflows "github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/rate"
)

func (e *Engine) flowDeps() internalflows.Deps {
	return internalflows.Deps{
		Login:        e.loginFlowDeps(),
		Refresh:      e.refreshFlowDeps(),
		Logout:       e.logoutFlowDeps(),
		Authenticate: e.authenticateFlowDeps(),
	}
}

func (e *Engine) loginFlowDeps() internalflows.LoginDeps {
	deps := internalflows.LoginDeps{
		UserNotFound: ErrUserNotFound,
		GetCredential: func(ctx context.Context, username string) (internalflows.LoginCredential, error) {
			cred, err := e.credentials.GetCredential(ctx, username)
			if err != nil {
				return internalflows.LoginCredential{}, err
			}
			return internalflows.LoginCredential{
				UserID:       cred.UserID,
				Username:     cred.Username,
				PasswordHash: cred.PasswordHash,
				Active:       cred.Status == AccountActive,
			}, nil
		},
		VerifyPassword: e.verifier.Verify,
		VerifyDummy:    e.verifier.VerifyDummy,
		IssuePair:      e.codec.IssuePair,
		Sessions:       e.store,
		Devices:        e.devices,
		Keys:           e.store.Keys(),
		RefreshTTL:     e.codec.RefreshTTL(),
		Warn:           e.warn,
	}
	if e.limiter.Enabled() {
		deps.CheckThrottle = e.limiter.Check
		deps.RecordFailure = e.limiter.RecordFailure
		deps.ResetThrottle = e.limiter.Reset
		deps.RateLimited = rate.ErrRateLimited
	}
	if e.config.Permission.PopulateOnLogin {
		deps.PopulatePermissions = func(ctx context.Context, userID string) error {
			_, err := e.permissions.Refresh(ctx, userID)
			return err
		}
	}
	return deps
}

func (e *Engine) refreshFlowDeps() internalflows.RefreshDeps {
	keys := e.store.Keys()
	tombstoneTTL := e.config.Session.ConsumedTombstoneTTL

	deps := internalflows.RefreshDeps{
		Decode: e.codec.Decode,
		Consume: func(ctx context.Context, jti string) (string, bool, error) {
			return e.store.GetAndDeleteWithTombstone(ctx, keys.Refresh(jti), keys.Consumed(jti), tombstoneTTL)
		},
		RevokeDevice:  e.devices.RevokeIfBound,
		AccountActive: e.accountActive,
		IssuePair:     e.codec.IssuePair,
		Sessions:      e.store,
		Devices:       e.devices,
		Keys:          keys,
		RefreshTTL:    e.codec.RefreshTTL(),
		Warn:          e.warn,
	}
	if tombstoneTTL > 0 {
		deps.WasConsumed = func(ctx context.Context, jti string) (bool, error) {
			return e.store.Exists(ctx, keys.Consumed(jti))
		}
	}
	return deps
}

func (e *Engine) logoutFlowDeps() internalflows.LogoutDeps {
	return internalflows.LogoutDeps{
		Store:   e.store,
		Devices: e.devices,
		Keys:    e.store.Keys(),
		Warn:    e.warn,
	}
}

func (e *Engine) authenticateFlowDeps() internalflows.AuthenticateDeps {
	return internalflows.AuthenticateDeps{
		Decode:        e.codec.Decode,
		Now:           e.codec.Now,
		ActivePointer: e.devices.Active,
		IsBlacklisted: e.store.IsBlacklisted,
		Permissions:   e.permissions.Get,
	}
}

// accountActive reloads the account during refresh. Without an
// AccountStatusCheck the credential directory is consulted by username and
// must still map to the same user id.
func (e *Engine) accountActive(ctx context.Context, userID, username string) (bool, error) {
	if e.status != nil {
		status, err := e.status.AccountStatus(ctx, userID)
		if errors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return status == AccountActive, nil
	}

	cred, err := e.credentials.GetCredential(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return cred.UserID == userID && cred.Status == AccountActive, nil
}
