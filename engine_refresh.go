package goSession

import (
	"context"
	"fmt"
	"strings"
	"time"

	internalflows "github.com/MrEthical07/goSession/internal/flows"
)

// Refresh exchanges a refresh token for a new pair. Each refresh token is
// accepted at most once: a second presentation, concurrent or not, returns
// ErrReuseDetected and revokes the device binding it came from.
func (e *Engine) Refresh(ctx context.Context, req RefreshRequest) (*TokenResponse, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observeSince(MetricRefreshLatency, start)

	if req.IP == "" {
		req.IP = clientIPFromContext(ctx)
	}
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if req.RefreshToken == "" || req.DeviceID == "" {
		e.metricInc(MetricRefreshFailure)
		return nil, fmt.Errorf("%w: refresh token and device id are required", ErrInvalidRequest)
	}

	res := e.flows.Refresh(ctx, internalflows.RefreshInput{
		RefreshToken: req.RefreshToken,
		DeviceID:     req.DeviceID,
		IP:           req.IP,
	})

	subject := auditSubject{DeviceID: req.DeviceID, IP: req.IP}
	if res.Claims != nil {
		subject.UserID = res.Claims.UserID
		subject.Username = res.Claims.Subject
		subject.DeviceID = res.Claims.DeviceID
		subject.TokenID = res.Claims.ID
	}
	if res.Record.ClientType != "" {
		subject.ClientType = res.Record.ClientType
	}

	if res.Failure != internalflows.RefreshFailureNone {
		return nil, e.refreshFailure(ctx, req, res, subject)
	}

	e.metricInc(MetricRefreshSuccess)
	e.metricInc(MetricSessionCreated)

	loginIP := req.IP
	if loginIP == "" {
		loginIP = res.Claims.LoginIP
	}
	rotated := subject
	rotated.TokenID = res.Pair.Refresh.JTI
	e.recordEvictions(ctx, rotated, res.Evicted)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, subject, nil, func() map[string]string {
		return map[string]string{"rotated_to": res.Pair.Refresh.JTI}
	})

	return e.tokenResponse(res.Pair, res.Record.DeviceID, res.Record.ClientType, loginIP), nil
}

func (e *Engine) refreshFailure(ctx context.Context, req RefreshRequest, res internalflows.RefreshResult, subject auditSubject) error {
	e.metricInc(MetricRefreshFailure)

	switch res.Failure {
	case internalflows.RefreshFailureDecode, internalflows.RefreshFailureWrongType:
		e.logger.Debug().Err(res.Err).Msg("refresh token rejected")
		e.emitAudit(ctx, auditEventRefreshInvalid, false, subject, ErrInvalidToken, nil)
		return ErrInvalidToken

	case internalflows.RefreshFailureReuse, internalflows.RefreshFailureReplay:
		e.metricInc(MetricRefreshReuseDetected)
		if res.Failure == internalflows.RefreshFailureReplay {
			e.metricInc(MetricReplayDetected)
		}
		if res.RevokedJTI != "" {
			e.metricInc(MetricSessionRevoked)
		}
		e.securityEvent(auditEventRefreshReuseDetected, subject, res.Reason, ErrReuseDetected)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, subject, ErrReuseDetected, func() map[string]string {
			return map[string]string{"reason": res.Reason, "revoked_jti": res.RevokedJTI}
		})
		return ErrReuseDetected

	case internalflows.RefreshFailureIntegrity:
		e.metricInc(MetricIntegrityViolation)
		if res.RevokedJTI != "" {
			e.metricInc(MetricSessionRevoked)
		}
		e.securityEvent(auditEventIntegrityViolation, subject, res.Reason, ErrIntegrityViolation)
		e.emitAudit(ctx, auditEventIntegrityViolation, false, subject, ErrIntegrityViolation, func() map[string]string {
			return map[string]string{
				"reason":        res.Reason,
				"record_user":   res.Record.UserID,
				"record_device": res.Record.DeviceID,
			}
		})
		return ErrIntegrityViolation

	case internalflows.RefreshFailureDeviceMismatch:
		e.metricInc(MetricDeviceMismatch)
		e.logger.Warn().
			Str("user_id", subject.UserID).
			Str("device_id", res.Record.DeviceID).
			Str("presented_device_id", req.DeviceID).
			Msg("refresh from a different device")
		e.emitAudit(ctx, auditEventDeviceMismatch, false, subject, ErrDeviceMismatch, func() map[string]string {
			return map[string]string{"presented_device_id": req.DeviceID}
		})
		return ErrDeviceMismatch

	case internalflows.RefreshFailureAccountDisabled:
		if res.RevokedJTI != "" {
			e.metricInc(MetricSessionRevoked)
		}
		e.emitAudit(ctx, auditEventRefreshInvalid, false, subject, ErrAccountDisabled, nil)
		return ErrAccountDisabled

	case internalflows.RefreshFailurePersist, internalflows.RefreshFailureBind:
		e.logger.Warn().Err(res.Err).Str("user_id", subject.UserID).Msg("refresh rotation not persisted")
		e.emitAudit(ctx, auditEventRefreshInvalid, false, subject, ErrSessionPersistFailure, nil)
		return ErrSessionPersistFailure

	default:
		err := fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err)
		e.logger.Warn().Err(res.Err).Str("user_id", subject.UserID).Msg("refresh failed")
		e.emitAudit(ctx, auditEventRefreshInvalid, false, subject, err, nil)
		return err
	}
}
