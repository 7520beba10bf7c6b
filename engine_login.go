package goSession

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	internalflows "github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/jwt"
)

// Login verifies credentials and opens a session for the client device.
//
// Unknown usernames and wrong passwords both return ErrInvalidCredential
// after comparable work. A successful login evicts the previous session of
// the configured scope.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observeSince(MetricLoginLatency, start)

	if req.IP == "" {
		req.IP = clientIPFromContext(ctx)
	}
	if req.Client.UserAgent == "" {
		req.Client.UserAgent = userAgentFromContext(ctx)
	}

	client, err := e.normalizeClient(req.Client)
	if err == nil && (strings.TrimSpace(req.Username) == "" || req.Password == "") {
		err = fmt.Errorf("%w: username and password are required", ErrInvalidRequest)
	}
	if err != nil {
		e.metricInc(MetricLoginInvalidRequest)
		e.emitAudit(ctx, auditEventLoginFailure, false, auditSubject{
			Username: req.Username,
			DeviceID: req.Client.DeviceID,
			IP:       req.IP,
		}, err, nil)
		return nil, err
	}
	req.Client = client

	res := e.flows.Login(ctx, internalflows.LoginInput{
		Username:   req.Username,
		Password:   req.Password,
		DeviceID:   client.DeviceID,
		ClientType: client.ClientType,
		IP:         req.IP,
	})

	subject := auditSubject{
		UserID:     res.UserID,
		Username:   req.Username,
		DeviceID:   client.DeviceID,
		ClientType: client.ClientType,
		IP:         req.IP,
	}

	if res.Failure != internalflows.LoginFailureNone {
		err := e.loginError(res)
		eventType := auditEventLoginFailure
		if res.Failure == internalflows.LoginFailureRateLimited {
			eventType = auditEventLoginRateLimited
			e.metricInc(MetricLoginRateLimited)
		} else {
			e.metricInc(MetricLoginFailure)
		}
		if res.Err != nil && res.Failure != internalflows.LoginFailureInvalidCredential && res.Failure != internalflows.LoginFailureRateLimited {
			e.logger.Warn().Err(res.Err).Str("username", req.Username).Str("device_id", client.DeviceID).Msg("login failed")
		}
		e.emitAudit(ctx, eventType, false, subject, err, clientMetadata(client))
		return nil, err
	}

	subject.TokenID = res.Pair.Refresh.JTI
	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	e.recordEvictions(ctx, subject, res.Evicted)
	e.emitAudit(ctx, auditEventLoginSuccess, true, subject, nil, clientMetadata(client))

	return e.tokenResponse(res.Pair, client.DeviceID, client.ClientType, req.IP), nil
}

func (e *Engine) loginError(res internalflows.LoginResult) error {
	switch res.Failure {
	case internalflows.LoginFailureRateLimited:
		return ErrLoginRateLimited
	case internalflows.LoginFailureInvalidCredential:
		return ErrInvalidCredential
	case internalflows.LoginFailureAccountDisabled:
		return ErrAccountDisabled
	case internalflows.LoginFailurePersist, internalflows.LoginFailureBind:
		return ErrSessionPersistFailure
	default:
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, res.Err)
	}
}

// normalizeClient checks the device id length and fills in the default
// client type.
func (e *Engine) normalizeClient(c ClientInfo) (ClientInfo, error) {
	c.DeviceID = strings.TrimSpace(c.DeviceID)
	if c.DeviceID == "" {
		return c, fmt.Errorf("%w: device id is required", ErrInvalidRequest)
	}
	if len(c.DeviceID) > e.config.Security.MaxDeviceIDLength {
		return c, fmt.Errorf("%w: device id exceeds %d characters", ErrInvalidRequest, e.config.Security.MaxDeviceIDLength)
	}
	if strings.ContainsAny(c.DeviceID, ": \t\r\n") {
		return c, fmt.Errorf("%w: device id contains reserved characters", ErrInvalidRequest)
	}

	c.ClientType = strings.ToUpper(strings.TrimSpace(c.ClientType))
	if c.ClientType == "" {
		c.ClientType = e.config.Security.DefaultClientType
	}
	if !slices.Contains(e.config.Security.AllowedClientTypes, c.ClientType) {
		return c, fmt.Errorf("%w: unsupported client type %q", ErrInvalidRequest, c.ClientType)
	}
	return c, nil
}

func clientMetadata(c ClientInfo) func() map[string]string {
	return func() map[string]string {
		md := make(map[string]string, 3)
		if c.OS != "" {
			md["os"] = c.OS
		}
		if c.Browser != "" {
			md["browser"] = c.Browser
		}
		if c.UserAgent != "" {
			md["user_agent"] = c.UserAgent
		}
		return md
	}
}

func (e *Engine) recordEvictions(ctx context.Context, subject auditSubject, evicted []string) {
	if len(evicted) == 0 {
		return
	}
	e.metrics.Add(MetricSessionEvicted, uint64(len(evicted)))
	for _, jti := range evicted {
		e.logger.Info().
			Str("user_id", subject.UserID).
			Str("device_id", subject.DeviceID).
			Str("evicted_jti", jti).
			Msg("previous session evicted")
		evictedSubject := subject
		evictedSubject.TokenID = jti
		e.emitAudit(ctx, auditEventSessionEvicted, true, evictedSubject, nil, func() map[string]string {
			return map[string]string{"replaced_by": subject.TokenID}
		})
	}
}

func (e *Engine) tokenResponse(pair jwt.Pair, deviceID, clientType, ip string) *TokenResponse {
	return &TokenResponse{
		AccessToken:      pair.Access.Raw,
		RefreshToken:     pair.Refresh.Raw,
		TokenType:        "Bearer",
		ExpiresIn:        int64(e.codec.AccessTTL() / time.Second),
		RefreshExpiresIn: int64(e.codec.RefreshTTL() / time.Second),
		DeviceID:         deviceID,
		ClientType:       clientType,
		IP:               ip,
	}
}
