package jwt

import (
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(Config{
		Secret:     testSecret,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Issuer:     "gosession",
	})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func TestNewCodecRejectsShortSecret(t *testing.T) {
	_, err := NewCodec(Config{
		Secret:     []byte("too-short"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	})
	if err == nil {
		t.Fatal("expected short secret to fail")
	}
}

func TestNewCodecRejectsShortLifetimes(t *testing.T) {
	if _, err := NewCodec(Config{Secret: testSecret, AccessTTL: 30 * time.Second, RefreshTTL: 48 * time.Hour}); err == nil {
		t.Fatal("expected access TTL below one minute to fail")
	}
	if _, err := NewCodec(Config{Secret: testSecret, AccessTTL: time.Minute, RefreshTTL: time.Hour}); err == nil {
		t.Fatal("expected refresh TTL below one day to fail")
	}
}

func TestIssueDecodeRoundTrip(t *testing.T) {
	c := newTestCodec(t)

	tok, err := c.Issue("alice", Claims{
		UserID:   "u-1",
		DeviceID: "d1",
		LoginIP:  "10.0.0.7",
		Custom:   map[string]any{"tenant": "acme", "admin": true},
	}, time.Hour, TypeRefresh)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := c.Decode(tok.Raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if claims.Subject != "alice" || claims.UserID != "u-1" || claims.DeviceID != "d1" || claims.LoginIP != "10.0.0.7" {
		t.Fatalf("unexpected identity claims: %+v", claims)
	}
	if claims.Type != TypeRefresh {
		t.Fatalf("expected refresh type, got %q", claims.Type)
	}
	if claims.ID != tok.JTI {
		t.Fatalf("jti mismatch: %q vs %q", claims.ID, tok.JTI)
	}
	if !claims.ExpiresAt.Equal(tok.ExpiresAt) {
		t.Fatalf("exp mismatch: %v vs %v", claims.ExpiresAt, tok.ExpiresAt)
	}
	if claims.Custom["tenant"] != "acme" || claims.Custom["admin"] != true {
		t.Fatalf("custom claims lost: %+v", claims.Custom)
	}
}

func TestIssueRejectsReservedCustomClaim(t *testing.T) {
	c := newTestCodec(t)
	if _, err := c.Issue("alice", Claims{Custom: map[string]any{"type": "access"}}, time.Hour, TypeRefresh); err == nil {
		t.Fatal("expected reserved custom claim to be rejected")
	}
}

func TestIssuePairBindsAccessToRefresh(t *testing.T) {
	c := newTestCodec(t)

	pair, err := c.IssuePair("alice", Claims{UserID: "u-1", DeviceID: "d1"})
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	if pair.Access.JTI == pair.Refresh.JTI {
		t.Fatal("access and refresh tokens must not share a jti")
	}

	access, err := c.Decode(pair.Access.Raw)
	if err != nil {
		t.Fatalf("decode access: %v", err)
	}
	if access.SessionID != pair.Refresh.JTI {
		t.Fatalf("expected sid %q, got %q", pair.Refresh.JTI, access.SessionID)
	}
	if access.Type != TypeAccess {
		t.Fatalf("expected access type, got %q", access.Type)
	}

	refresh, err := c.Decode(pair.Refresh.Raw)
	if err != nil {
		t.Fatalf("decode refresh: %v", err)
	}
	if refresh.SessionID != "" {
		t.Fatalf("refresh token must not carry sid, got %q", refresh.SessionID)
	}
}

func TestIssueGeneratesDistinctJTIs(t *testing.T) {
	c := newTestCodec(t)
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		tok, err := c.Issue("alice", Claims{}, time.Minute, TypeAccess)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if _, dup := seen[tok.JTI]; dup {
			t.Fatalf("duplicate jti %q", tok.JTI)
		}
		seen[tok.JTI] = struct{}{}
	}
}

func TestDecodeExpired(t *testing.T) {
	c := newTestCodec(t)
	c.SetClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })
	tok, err := c.Issue("alice", Claims{}, time.Minute, TypeAccess)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c.SetClock(nil)

	if _, err := c.Decode(tok.Raw); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestDecodeExpiredWithBadSignatureReportsExpired(t *testing.T) {
	c := newTestCodec(t)
	c.SetClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })
	tok, err := c.Issue("alice", Claims{}, time.Minute, TypeAccess)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c.SetClock(nil)

	if _, err := c.Decode(tamperSignature(tok.Raw)); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func newLeewayCodec(t *testing.T, leeway time.Duration) *Codec {
	t.Helper()
	c, err := NewCodec(Config{
		Secret:     testSecret,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Issuer:     "gosession",
		Leeway:     leeway,
	})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func TestDecodeExpiryIgnoresLeeway(t *testing.T) {
	c := newLeewayCodec(t, 30*time.Second)
	issued := time.Now().Add(-time.Hour)
	c.SetClock(func() time.Time { return issued })
	tok, err := c.Issue("alice", Claims{}, time.Minute, TypeAccess)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Inside the leeway window but past exp.
	c.SetClock(func() time.Time { return tok.ExpiresAt.Add(10 * time.Second) })
	if _, err := c.Decode(tok.Raw); !errors.Is(err, ErrExpired) {
		t.Fatalf("valid signature: expected ErrExpired, got %v", err)
	}
	if _, err := c.Decode(tamperSignature(tok.Raw)); !errors.Is(err, ErrExpired) {
		t.Fatalf("bad signature: expected ErrExpired, got %v", err)
	}

	c.SetClock(func() time.Time { return tok.ExpiresAt })
	if _, err := c.Decode(tok.Raw); !errors.Is(err, ErrExpired) {
		t.Fatalf("at exp: expected ErrExpired, got %v", err)
	}
}

func TestDecodeLeewayAppliesToIssuedAt(t *testing.T) {
	c := newLeewayCodec(t, 30*time.Second)
	now := time.Now()
	c.SetClock(func() time.Time { return now.Add(20 * time.Second) })
	tok, err := c.Issue("alice", Claims{}, time.Minute, TypeAccess)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	c.SetClock(func() time.Time { return now })
	if _, err := c.Decode(tok.Raw); err != nil {
		t.Fatalf("iat within leeway should decode: %v", err)
	}
}

func TestDecodeIgnoringExpiry(t *testing.T) {
	c := newTestCodec(t)
	c.SetClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })
	tok, err := c.Issue("alice", Claims{UserID: "u1", SessionID: "r1"}, time.Minute, TypeAccess)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c.SetClock(nil)

	claims, err := c.DecodeIgnoringExpiry(tok.Raw)
	if err != nil {
		t.Fatalf("expired token with a valid signature: %v", err)
	}
	if claims.UserID != "u1" || claims.SessionID != "r1" || claims.Type != TypeAccess {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := c.DecodeIgnoringExpiry(tamperSignature(tok.Raw)); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	other, err := NewCodec(Config{
		Secret:     testSecret,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Issuer:     "someone-else",
	})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if _, err := other.DecodeIgnoringExpiry(tok.Raw); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for foreign issuer, got %v", err)
	}
}

func TestDecodeBadSignature(t *testing.T) {
	c := newTestCodec(t)
	tok, err := c.Issue("alice", Claims{}, time.Hour, TypeAccess)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := c.Decode(tamperSignature(tok.Raw)); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	other, err := NewCodec(Config{
		Secret:     []byte("fedcba9876543210fedcba9876543210"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Issuer:     "gosession",
	})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if _, err := other.Decode(tok.Raw); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for foreign key, got %v", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	c := newTestCodec(t)
	for _, raw := range []string{"", "not.a.jwt", "a.b", "eyJhbGciOiJub25lIn0.eyJzdWIiOiJ4In0."} {
		_, err := c.Decode(raw)
		if err == nil {
			t.Fatalf("expected %q to fail", raw)
		}
		if errors.Is(err, ErrExpired) {
			t.Fatalf("malformed %q must not report expiry", raw)
		}
	}
}

func TestDecodeRejectsWrongAlgorithm(t *testing.T) {
	c := newTestCodec(t)
	claims := gjwt.MapClaims{
		"sub":  "alice",
		"jti":  "j1",
		"type": "access",
		"iss":  "gosession",
		"exp":  gjwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	raw, err := gjwt.NewWithClaims(gjwt.SigningMethodHS512, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := c.Decode(raw); err == nil {
		t.Fatal("expected HS512 token to be rejected")
	}
}

func TestDecodeRequiresTypeAndJTI(t *testing.T) {
	c := newTestCodec(t)
	claims := gjwt.MapClaims{
		"sub": "alice",
		"iss": "gosession",
		"exp": gjwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	raw, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := c.Decode(raw); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestRemaining(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	claims := &Claims{ExpiresAt: now.Add(90 * time.Second)}
	if got := Remaining(claims, now); got != 90*time.Second {
		t.Fatalf("expected 90s, got %v", got)
	}
	if got := Remaining(claims, now.Add(time.Hour)); got != 0 {
		t.Fatalf("expected 0 after expiry, got %v", got)
	}
	if got := Remaining(nil, now); got != 0 {
		t.Fatalf("expected 0 for nil claims, got %v", got)
	}
}

func tamperSignature(raw string) string {
	idx := strings.LastIndex(raw, ".")
	sig := []byte(raw[idx+1:])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	return raw[:idx+1] + string(sig)
}
