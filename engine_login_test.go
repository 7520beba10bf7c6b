package goSession

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoginIssuesBoundPair(t *testing.T) {
	te := newTestEngine(t, testConfig())

	resp := te.login(t, "alice", "device-0001")
	if resp.TokenType != "Bearer" {
		t.Fatalf("unexpected token type %q", resp.TokenType)
	}
	if resp.ExpiresIn != int64((30*time.Minute)/time.Second) {
		t.Fatalf("unexpected expiresIn %d", resp.ExpiresIn)
	}
	if resp.RefreshExpiresIn != int64((7*24*time.Hour)/time.Second) {
		t.Fatalf("unexpected refreshExpiresIn %d", resp.RefreshExpiresIn)
	}
	if resp.DeviceID != "device-0001" || resp.ClientType != ClientWeb || resp.IP != "10.0.0.1" {
		t.Fatalf("unexpected client echo %+v", resp)
	}

	access, err := te.codec.Decode(resp.AccessToken)
	if err != nil {
		t.Fatalf("decode access: %v", err)
	}
	refresh, err := te.codec.Decode(resp.RefreshToken)
	if err != nil {
		t.Fatalf("decode refresh: %v", err)
	}
	if access.ID == refresh.ID {
		t.Fatal("access and refresh must carry distinct jti")
	}
	if access.SessionID != refresh.ID {
		t.Fatalf("access sid %q must equal refresh jti %q", access.SessionID, refresh.ID)
	}
	if access.Subject != "alice" || access.UserID != "u1" || access.DeviceID != "device-0001" || access.LoginIP != "10.0.0.1" {
		t.Fatalf("unexpected access claims %+v", access)
	}

	record, err := te.mr.Get("session:refresh:" + refresh.ID)
	if err != nil || record != "u1:device-0001:WEB" {
		t.Fatalf("unexpected session record %q err=%v", record, err)
	}
	if got, _ := te.mr.Get("session:active:u1"); got != refresh.ID {
		t.Fatalf("active pointer %q, want %q", got, refresh.ID)
	}
	if got, _ := te.mr.Get("session:device:u1:device-0001"); got != refresh.ID {
		t.Fatalf("device pointer %q, want %q", got, refresh.ID)
	}
	if ttl := te.mr.TTL("session:refresh:" + refresh.ID); ttl != 7*24*time.Hour {
		t.Fatalf("record ttl %v", ttl)
	}
	if !te.mr.Exists("perm:u1") {
		t.Fatal("expected permission cache populated at login")
	}
}

func TestLoginUnknownUserAndWrongPasswordLookAlike(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	_, errUnknown := te.Login(ctx, LoginRequest{Username: "mallory", Password: testPassword, Client: ClientInfo{DeviceID: "device-0001"}})
	_, errWrong := te.Login(ctx, LoginRequest{Username: "alice", Password: "wrong-password", Client: ClientInfo{DeviceID: "device-0001"}})

	if !errors.Is(errUnknown, ErrInvalidCredential) || !errors.Is(errWrong, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for both, got %v / %v", errUnknown, errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatalf("errors must be indistinguishable: %q vs %q", errUnknown, errWrong)
	}
	if keys, _ := te.rdb.Keys(ctx, "session:*").Result(); len(keys) != 0 {
		t.Fatalf("failed login must not persist sessions, found %v", keys)
	}
	if got := te.MetricsSnapshot().Counters[MetricLoginFailure]; got != 2 {
		t.Fatalf("expected 2 login failures, got %d", got)
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	te := newTestEngine(t, testConfig())

	_, err := te.Login(context.Background(), LoginRequest{Username: "carol", Password: testPassword, Client: ClientInfo{DeviceID: "device-0001"}})
	if !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
	if keys, _ := te.rdb.Keys(context.Background(), "session:*").Result(); len(keys) != 0 {
		t.Fatalf("disabled login must not persist sessions, found %v", keys)
	}
}

func TestLoginValidatesClientInfo(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	cases := []ClientInfo{
		{DeviceID: ""},
		{DeviceID: "   "},
		{DeviceID: strings.Repeat("d", 129)},
		{DeviceID: "dev:1"},
		{DeviceID: "device-0001", ClientType: "TV"},
	}
	for _, client := range cases {
		_, err := te.Login(ctx, LoginRequest{Username: "alice", Password: testPassword, Client: client})
		if !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("client %+v: expected ErrInvalidRequest, got %v", client, err)
		}
	}

	resp, err := te.Login(ctx, LoginRequest{
		Username: "alice",
		Password: testPassword,
		Client:   ClientInfo{DeviceID: strings.Repeat("d", 128), ClientType: "app"},
	})
	if err != nil {
		t.Fatalf("128-char device id should be accepted: %v", err)
	}
	if resp.ClientType != ClientApp {
		t.Fatalf("expected normalized client type APP, got %q", resp.ClientType)
	}

	if _, err := te.Login(ctx, LoginRequest{Password: testPassword, Client: ClientInfo{DeviceID: "device-0001"}}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("missing username: expected ErrInvalidRequest, got %v", err)
	}
}

func TestLoginRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Security.MaxLoginAttempts = 3
	cfg.Security.EnableIPThrottle = false
	te := newTestEngine(t, cfg)
	ctx := context.Background()

	bad := LoginRequest{Username: "alice", Password: "nope", Client: ClientInfo{DeviceID: "device-0001"}}
	for i := 0; i < 3; i++ {
		if _, err := te.Login(ctx, bad); !errors.Is(err, ErrInvalidCredential) {
			t.Fatalf("attempt %d: expected ErrInvalidCredential, got %v", i, err)
		}
	}

	good := bad
	good.Password = testPassword
	if _, err := te.Login(ctx, good); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited, got %v", err)
	}
	if got := te.MetricsSnapshot().Counters[MetricLoginRateLimited]; got != 1 {
		t.Fatalf("expected 1 rate-limited login, got %d", got)
	}

	te.mr.FastForward(cfg.Security.LoginCooldown + time.Second)
	if _, err := te.Login(ctx, good); err != nil {
		t.Fatalf("login after cooldown: %v", err)
	}
	if te.mr.Exists("auth:login:limit:alice") {
		t.Fatal("successful login should reset the counter")
	}
}

func TestLoginPersistFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Security.MaxLoginAttempts = 0
	te := newTestEngine(t, cfg)

	te.mr.SetError("READONLY simulated failure")
	_, err := te.Login(context.Background(), LoginRequest{Username: "alice", Password: testPassword, Client: ClientInfo{DeviceID: "device-0001"}})
	te.mr.SetError("")

	if !errors.Is(err, ErrSessionPersistFailure) {
		t.Fatalf("expected ErrSessionPersistFailure, got %v", err)
	}
	if keys, _ := te.rdb.Keys(context.Background(), "session:*").Result(); len(keys) != 0 {
		t.Fatalf("no session may survive a failed persist, found %v", keys)
	}
}

func TestLoginThrottleUnavailableFailsClosed(t *testing.T) {
	te := newTestEngine(t, testConfig())

	te.mr.SetError("LOADING simulated failure")
	_, err := te.Login(context.Background(), LoginRequest{Username: "alice", Password: testPassword, Client: ClientInfo{DeviceID: "device-0001"}})
	te.mr.SetError("")

	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestSecondLoginEvictsFirstSession(t *testing.T) {
	te := newTestEngine(t, testConfig())

	first := te.login(t, "alice", "device-0001")
	second := te.login(t, "alice", "device-0001")

	if te.mr.Exists("session:refresh:" + te.jti(t, first.RefreshToken)) {
		t.Fatal("first session record should be evicted")
	}
	if keys, _ := te.rdb.Keys(context.Background(), "session:refresh:*").Result(); len(keys) != 1 {
		t.Fatalf("expected one live record per device, found %v", keys)
	}
	if _, err := te.Authenticate(context.Background(), first.AccessToken); !errors.Is(err, ErrSessionSuperseded) {
		t.Fatalf("expected ErrSessionSuperseded for evicted access token, got %v", err)
	}
	if _, err := te.Authenticate(context.Background(), second.AccessToken); err != nil {
		t.Fatalf("second session should be active: %v", err)
	}
	if got := te.MetricsSnapshot().Counters[MetricSessionEvicted]; got != 1 {
		t.Fatalf("expected 1 eviction, got %d", got)
	}

	// The evicted refresh token is reported as reuse but cannot revoke the
	// session that replaced it.
	if _, err := te.refresh(first.RefreshToken, "device-0001"); !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("expected ErrReuseDetected for evicted token, got %v", err)
	}
	if _, err := te.refresh(second.RefreshToken, "device-0001"); err != nil {
		t.Fatalf("second session must survive a stale refresh token: %v", err)
	}
}

func TestUserScopeLoginOnOtherDeviceEvicts(t *testing.T) {
	te := newTestEngine(t, testConfig())

	d1 := te.login(t, "alice", "device-0001")
	d2 := te.login(t, "alice", "device-0002")

	if _, err := te.Authenticate(context.Background(), d1.AccessToken); !errors.Is(err, ErrSessionSuperseded) {
		t.Fatalf("expected d1 superseded, got %v", err)
	}
	if _, err := te.refresh(d1.RefreshToken, "device-0001"); !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("expected d1 refresh reuse, got %v", err)
	}
	// Revoking d1's binding must not touch d2.
	if _, err := te.Authenticate(context.Background(), d2.AccessToken); err != nil {
		t.Fatalf("d2 should stay active: %v", err)
	}
	if _, err := te.refresh(d2.RefreshToken, "device-0002"); err != nil {
		t.Fatalf("d2 refresh: %v", err)
	}
}

func TestDeviceScopeKeepsSessionsPerDevice(t *testing.T) {
	cfg := testConfig()
	cfg.Session.Scope = "device"
	te := newTestEngine(t, cfg)

	d1 := te.login(t, "alice", "device-0001")
	d2 := te.login(t, "alice", "device-0002")

	for name, resp := range map[string]*TokenResponse{"d1": d1, "d2": d2} {
		if _, err := te.Authenticate(context.Background(), resp.AccessToken); err != nil {
			t.Fatalf("%s authenticate: %v", name, err)
		}
	}
	if _, err := te.refresh(d1.RefreshToken, "device-0001"); err != nil {
		t.Fatalf("d1 refresh: %v", err)
	}
	if _, err := te.refresh(d2.RefreshToken, "device-0002"); err != nil {
		t.Fatalf("d2 refresh: %v", err)
	}
}

func TestLoginUsesContextClientIP(t *testing.T) {
	te := newTestEngine(t, testConfig())

	ctx := WithClientIP(context.Background(), "192.0.2.7")
	resp, err := te.Login(ctx, LoginRequest{Username: "alice", Password: testPassword, Client: ClientInfo{DeviceID: "device-0001"}})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.IP != "192.0.2.7" {
		t.Fatalf("expected context IP, got %q", resp.IP)
	}
}
