package goSession

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredential is returned for an unknown username or a wrong password.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrAccountDisabled is returned when the account is not active.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrInvalidToken is returned for tokens that fail decoding, type or expiry checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenRevoked is returned for blacklisted access tokens. It matches ErrInvalidToken.
	ErrTokenRevoked = fmt.Errorf("%w: revoked", ErrInvalidToken)
	// ErrReuseDetected is returned when a refresh token has no live session record.
	ErrReuseDetected = errors.New("refresh token reuse detected")
	// ErrDeviceMismatch is returned when a refresh is attempted from another device.
	ErrDeviceMismatch = errors.New("device mismatch")
	// ErrIntegrityViolation is returned when a session record disagrees with its token.
	ErrIntegrityViolation = errors.New("session integrity violation")
	// ErrSessionSuperseded is returned for access tokens of a session that is no longer active.
	ErrSessionSuperseded = errors.New("session superseded")
	// ErrSessionPersistFailure is returned when a new session could not be stored.
	ErrSessionPersistFailure = errors.New("session persist failure")
	// ErrLoginRateLimited is returned once the failed-login budget is spent.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrInvalidRequest is returned for malformed login or refresh input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUserNotFound is what CredentialLookup implementations return for unknown users.
	ErrUserNotFound = errors.New("user not found")
	// ErrEngineNotReady is returned by a zero or closed Engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrBackendUnavailable is returned when Redis or a collaborator fails mid-operation.
	ErrBackendUnavailable = errors.New("authentication backend unavailable")
)

// GenericAuthMessage is the only failure text shown to clients.
const GenericAuthMessage = "authentication failed, please sign in again"

// PublicMessage returns the client-facing text for err. Every authentication
// failure maps to GenericAuthMessage so responses never reveal which check
// failed.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "invalid request"
	case errors.Is(err, ErrLoginRateLimited):
		return "too many attempts, please try again later"
	case errors.Is(err, ErrBackendUnavailable), errors.Is(err, ErrEngineNotReady):
		return "service temporarily unavailable"
	default:
		return GenericAuthMessage
	}
}

// IsSecurityEvent reports whether err signals a possible token theft.
func IsSecurityEvent(err error) bool {
	return errors.Is(err, ErrReuseDetected) || errors.Is(err, ErrIntegrityViolation)
}
