package goSession

import (
	"context"
	"fmt"
	"time"

	internalflows "github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/jwt"
)

// Logout revokes the session an access token belongs to. Both the access
// jti and its refresh jti are blacklisted for their remaining lifetimes and
// the refresh record is deleted. An access token past its expiry is still
// accepted here as long as its signature verifies, since its refresh session
// may be live. Any store failure is returned so the caller never reports a
// logout that did not happen.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	claims, err := e.codec.DecodeIgnoringExpiry(accessToken)
	if err != nil || claims.Type != jwt.TypeAccess {
		return ErrInvalidToken
	}

	return e.logout(ctx, internalflows.LogoutInput{
		AccessJTI:       claims.ID,
		AccessRemaining: jwt.Remaining(claims, e.codec.Now()),
		RefreshJTI:      claims.SessionID,
		UserID:          claims.UserID,
		DeviceID:        claims.DeviceID,
	}, auditSubject{
		UserID:   claims.UserID,
		Username: claims.Subject,
		DeviceID: claims.DeviceID,
		TokenID:  claims.ID,
	})
}

// RevokeTokens blacklists accessJTI for accessRemaining and revokes the
// refresh session refreshJTI. It serves callers that hold token ids rather
// than raw tokens.
func (e *Engine) RevokeTokens(ctx context.Context, accessJTI string, accessRemaining time.Duration, refreshJTI string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if accessJTI == "" && refreshJTI == "" {
		return fmt.Errorf("%w: no token id given", ErrInvalidRequest)
	}
	return e.logout(ctx, internalflows.LogoutInput{
		AccessJTI:       accessJTI,
		AccessRemaining: accessRemaining,
		RefreshJTI:      refreshJTI,
	}, auditSubject{TokenID: accessJTI})
}

func (e *Engine) logout(ctx context.Context, in internalflows.LogoutInput, subject auditSubject) error {
	res, err := e.flows.Logout(ctx, in)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		e.logger.Warn().Err(err).Str("user_id", subject.UserID).Str("jti", in.AccessJTI).Msg("logout failed")
		e.emitAudit(ctx, auditEventLogout, false, subject, wrapped, nil)
		return wrapped
	}

	e.metricInc(MetricLogout)
	if res.RecordDeleted {
		e.metricInc(MetricSessionRevoked)
	}
	e.emitAudit(ctx, auditEventLogout, true, subject, nil, func() map[string]string {
		return map[string]string{
			"refresh_jti":     in.RefreshJTI,
			"refresh_revoked": fmt.Sprint(res.RecordDeleted),
		}
	})
	return nil
}

// Authenticate checks an access token for a request and returns the
// identity it carries.
//
// The token must verify, be unexpired, be an access token, belong to the
// session currently active for its scope and not be blacklisted. Failures
// match ErrInvalidToken, ErrSessionSuperseded, ErrTokenRevoked or, when
// Redis or the permission resolver fails, ErrBackendUnavailable.
func (e *Engine) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observeSince(MetricAuthenticateLatency, start)

	res := e.flows.Authenticate(ctx, token)
	if res.Failure != internalflows.AuthenticateFailureNone {
		e.metricInc(MetricAuthenticateFailure)
		return nil, e.authenticateError(res)
	}

	e.metricInc(MetricAuthenticateSuccess)
	claims := res.Claims
	return &Identity{
		UserID:      claims.UserID,
		Username:    claims.Subject,
		DeviceID:    claims.DeviceID,
		SessionID:   claims.SessionID,
		TokenID:     claims.ID,
		LoginIP:     claims.LoginIP,
		Permissions: res.Permissions,
		ExpiresAt:   claims.ExpiresAt,
	}, nil
}

func (e *Engine) authenticateError(res internalflows.AuthenticateResult) error {
	switch res.Failure {
	case internalflows.AuthenticateFailureDecode:
		return fmt.Errorf("%w: %v", ErrInvalidToken, res.Err)
	case internalflows.AuthenticateFailureWrongType, internalflows.AuthenticateFailureExpired:
		return ErrInvalidToken
	case internalflows.AuthenticateFailureSuperseded:
		e.metricInc(MetricSessionSuperseded)
		return ErrSessionSuperseded
	case internalflows.AuthenticateFailureRevoked:
		e.metricInc(MetricTokenRevoked)
		return ErrTokenRevoked
	default:
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err)
	}
}
