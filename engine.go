package goSession

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/MrEthical07/goSession/internal/audit"
	internalflows "github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/password"
	"github.com/MrEthical07/goSession/permission"
	"github.com/MrEthical07/goSession/session"
)

// Engine is the authentication service: login, refresh rotation, logout and
// per-request access token checks over a shared Redis.
//
// An Engine is built once by Builder and is safe for concurrent use.
type Engine struct {
	config      Config
	logger      zerolog.Logger
	codec       *jwt.Codec
	store       *session.Store
	devices     *session.DeviceManager
	permissions *permission.Cache
	limiter     *rate.Limiter
	verifier    *password.Verifier
	credentials CredentialLookup
	status      AccountStatusCheck
	flows       internalflows.Service
	audit       *audit.Dispatcher
	metrics     *Metrics
	closed      atomic.Bool
}

func (e *Engine) ready() bool {
	return e != nil && !e.closed.Load() && e.flows.Initialized()
}

// Close stops accepting calls and drains the audit dispatcher. It does not
// close the Redis client, which the caller owns.
func (e *Engine) Close() {
	if e == nil || !e.closed.CompareAndSwap(false, true) {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeSince(id MetricID, start time.Time) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

func (e *Engine) warn(msg string, err error) {
	e.logger.Warn().Err(err).Msg(msg)
}

// Config returns a copy of the configuration the engine was built with.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// AccessTTL returns the access token lifetime.
func (e *Engine) AccessTTL() time.Duration { return e.codec.AccessTTL() }

// RefreshTTL returns the refresh token lifetime.
func (e *Engine) RefreshTTL() time.Duration { return e.codec.RefreshTTL() }

// HashPassword returns an argon2id hash suitable for the user directory.
func (e *Engine) HashPassword(plain string) (string, error) {
	return e.verifier.Hash(plain)
}

// Ping checks Redis and returns the round-trip latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	latency, err := e.store.Ping(ctx)
	if err != nil {
		return latency, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return latency, nil
}

// ClearPermissionCache drops cached permission sets. RBAC administration
// calls it after changing roles or menus so the next request recomputes.
func (e *Engine) ClearPermissionCache(ctx context.Context, userIDs ...string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if len(userIDs) == 0 {
		return nil
	}
	if err := e.permissions.Invalidate(ctx, userIDs...); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	e.emitAudit(ctx, auditEventPermissionsCleared, true, auditSubject{}, nil, func() map[string]string {
		return map[string]string{"users": fmt.Sprint(len(userIDs))}
	})
	return nil
}

// ActiveSession returns the refresh jti currently bound to the scope of
// (userID, deviceID).
func (e *Engine) ActiveSession(ctx context.Context, userID, deviceID string) (string, bool, error) {
	if !e.ready() {
		return "", false, ErrEngineNotReady
	}
	jti, ok, err := e.devices.Active(ctx, userID, deviceID)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return jti, ok, nil
}

// RevokeDevice deletes the session bound to (userID, deviceID). Access
// tokens of that session are rejected from the next request on.
func (e *Engine) RevokeDevice(ctx context.Context, userID, deviceID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	jti, err := e.devices.Revoke(ctx, userID, deviceID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if jti != "" {
		e.metricInc(MetricSessionRevoked)
	}
	return nil
}
