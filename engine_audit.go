package goSession

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventIntegrityViolation   = "session_integrity_violation"
	auditEventDeviceMismatch       = "refresh_device_mismatch"
	auditEventSessionEvicted       = "session_evicted"
	auditEventLogout               = "logout"
	auditEventPermissionsCleared   = "permission_cache_cleared"
)

// AuditErrorCode is the machine-readable reason recorded on failed events.
type AuditErrorCode string

const (
	auditErrInvalidRequest    AuditErrorCode = "invalid_request"
	auditErrInvalidCredential AuditErrorCode = "invalid_credential"
	auditErrRateLimited       AuditErrorCode = "rate_limited"
	auditErrAccountDisabled   AuditErrorCode = "account_disabled"
	auditErrInvalidToken      AuditErrorCode = "invalid_token"
	auditErrTokenRevoked      AuditErrorCode = "token_revoked"
	auditErrRefreshReuse      AuditErrorCode = "refresh_reuse"
	auditErrIntegrity         AuditErrorCode = "integrity_violation"
	auditErrDeviceMismatch    AuditErrorCode = "device_mismatch"
	auditErrSuperseded        AuditErrorCode = "session_superseded"
	auditErrPersistFailure    AuditErrorCode = "session_persist_failure"
	auditErrUnavailable       AuditErrorCode = "backend_unavailable"
	auditErrInternal          AuditErrorCode = "internal_error"
)

// auditSubject names who an event is about.
type auditSubject struct {
	UserID     string
	Username   string
	DeviceID   string
	ClientType string
	TokenID    string
	IP         string
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subject auditSubject,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}
	if subject.IP == "" {
		subject.IP = clientIPFromContext(ctx)
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		Success:    success,
		UserID:     subject.UserID,
		Username:   subject.Username,
		DeviceID:   subject.DeviceID,
		ClientType: subject.ClientType,
		TokenID:    subject.TokenID,
		IP:         subject.IP,
		Metadata:   metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Reason = string(code)
	}

	e.audit.Emit(ctx, event)
}

// securityEvent logs a possible token theft at error level.
func (e *Engine) securityEvent(event string, subject auditSubject, reason string, err error) {
	e.logger.Error().
		Err(err).
		Str("event", event).
		Str("user_id", subject.UserID).
		Str("device_id", subject.DeviceID).
		Str("jti", subject.TokenID).
		Str("reason", reason).
		Str("ip", subject.IP).
		Msg("refresh token security event")
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidRequest):
		return auditErrInvalidRequest
	case errors.Is(err, ErrInvalidCredential):
		return auditErrInvalidCredential
	case errors.Is(err, ErrLoginRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrReuseDetected):
		return auditErrRefreshReuse
	case errors.Is(err, ErrIntegrityViolation):
		return auditErrIntegrity
	case errors.Is(err, ErrDeviceMismatch):
		return auditErrDeviceMismatch
	case errors.Is(err, ErrSessionSuperseded):
		return auditErrSuperseded
	case errors.Is(err, ErrSessionPersistFailure):
		return auditErrPersistFailure
	case errors.Is(err, ErrBackendUnavailable), errors.Is(err, ErrEngineNotReady):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
