package jwt

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes access tokens from refresh tokens via the "type" claim.
type TokenType string

const (
	// TypeAccess marks a short-lived token presented on every request.
	TypeAccess TokenType = "access"
	// TypeRefresh marks a single-use token exchanged for a new pair.
	TypeRefresh TokenType = "refresh"
)

const (
	// MinSecretBytes is the smallest HS256 secret accepted by NewCodec.
	MinSecretBytes = 32
	// MinAccessTTL is the shortest configurable access token lifetime.
	MinAccessTTL = time.Minute
	// MinRefreshTTL is the shortest configurable refresh token lifetime.
	MinRefreshTTL = 24 * time.Hour
	// MaxLeeway bounds clock skew tolerance for the iat and nbf checks.
	MaxLeeway = 2 * time.Minute
)

var (
	// ErrExpired is returned by Decode when the exp claim is in the past.
	ErrExpired = errors.New("token expired")
	// ErrInvalidSignature is returned by Decode when the HMAC does not verify.
	ErrInvalidSignature = errors.New("token signature invalid")
	// ErrMalformed is returned by Decode for structurally invalid tokens.
	ErrMalformed = errors.New("token malformed")
)

const (
	claimSubject   = "sub"
	claimID        = "jti"
	claimIssuedAt  = "iat"
	claimExpiresAt = "exp"
	claimNotBefore = "nbf"
	claimIssuer    = "iss"
	claimAudience  = "aud"
	claimType      = "type"
	claimUserID    = "userId"
	claimDeviceID  = "deviceId"
	claimSession   = "sid"
	claimLoginIP   = "loginIp"
)

var reservedClaims = map[string]struct{}{
	claimSubject: {}, claimID: {}, claimIssuedAt: {}, claimExpiresAt: {},
	claimNotBefore: {}, claimIssuer: {}, claimAudience: {}, claimType: {},
	claimUserID: {}, claimDeviceID: {}, claimSession: {}, claimLoginIP: {},
}

// Config carries the HS256 secret and token lifetimes.
type Config struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Audience   string
	Leeway     time.Duration
}

// Claims is the decoded payload of an access or refresh token.
//
// SessionID is only set on access tokens and holds the jti of the refresh
// token issued alongside it. Custom values round-trip through JSON, so
// numeric values come back as float64.
type Claims struct {
	Subject   string
	UserID    string
	DeviceID  string
	SessionID string
	LoginIP   string
	Type      TokenType
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Custom    map[string]any
}

// Token is a signed token plus the identifiers callers need to persist it.
type Token struct {
	Raw       string
	JTI       string
	Type      TokenType
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Pair is an access token and the refresh token it is bound to.
type Pair struct {
	Access  Token
	Refresh Token
}

// Codec issues and verifies HS256 tokens. It is safe for concurrent use.
type Codec struct {
	config Config
	now    func() time.Time
}

// NewCodec validates cfg and returns a ready Codec.
//
// A secret shorter than MinSecretBytes is a startup failure, not a warning.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < MinSecretBytes {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", MinSecretBytes)
	}
	if cfg.AccessTTL < MinAccessTTL {
		return nil, errors.New("access TTL must be at least 1 minute")
	}
	if cfg.RefreshTTL < MinRefreshTTL {
		return nil, errors.New("refresh TTL must be at least 24 hours")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh TTL must exceed access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > MaxLeeway {
		return nil, errors.New("invalid leeway configuration")
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	return &Codec{config: cfg, now: time.Now}, nil
}

// AccessTTL returns the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.config.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.config.RefreshTTL }

// Now returns the codec clock. Expiry re-checks use it so tests can pin time.
func (c *Codec) Now() time.Time { return c.now() }

// SetClock replaces the codec clock. Intended for tests.
func (c *Codec) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	c.now = now
}

// Issue signs a token of the given type with a fresh random jti.
//
// The subject, type, jti, iat and exp claims are always set. Identity fields
// on claims are written only when non-empty. Custom claims may not shadow a
// reserved name.
func (c *Codec) Issue(subject string, claims Claims, ttl time.Duration, typ TokenType) (Token, error) {
	if ttl <= 0 {
		return Token{}, errors.New("token TTL must be positive")
	}
	if typ != TypeAccess && typ != TypeRefresh {
		return Token{}, fmt.Errorf("unsupported token type %q", typ)
	}

	now := c.now()
	exp := now.Add(ttl)
	jti := uuid.NewString()

	mc := jwt.MapClaims{
		claimSubject:   subject,
		claimID:        jti,
		claimType:      string(typ),
		claimIssuedAt:  jwt.NewNumericDate(now),
		claimExpiresAt: jwt.NewNumericDate(exp),
	}
	if c.config.Issuer != "" {
		mc[claimIssuer] = c.config.Issuer
	}
	if c.config.Audience != "" {
		mc[claimAudience] = c.config.Audience
	}
	setString(mc, claimUserID, claims.UserID)
	setString(mc, claimDeviceID, claims.DeviceID)
	setString(mc, claimSession, claims.SessionID)
	setString(mc, claimLoginIP, claims.LoginIP)

	for name, value := range claims.Custom {
		if _, reserved := reservedClaims[name]; reserved {
			return Token{}, fmt.Errorf("custom claim %q shadows a reserved claim", name)
		}
		mc[name] = value
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(c.config.Secret)
	if err != nil {
		return Token{}, err
	}

	return Token{
		Raw:       raw,
		JTI:       jti,
		Type:      typ,
		IssuedAt:  now.Truncate(time.Second),
		ExpiresAt: exp.Truncate(time.Second),
	}, nil
}

// IssuePair issues a refresh token and an access token bound to it.
//
// The two tokens always carry distinct jti values. The access token's sid
// claim is the refresh jti, which is what the device pointer stores.
func (c *Codec) IssuePair(subject string, claims Claims) (Pair, error) {
	refreshClaims := claims
	refreshClaims.SessionID = ""
	refresh, err := c.Issue(subject, refreshClaims, c.config.RefreshTTL, TypeRefresh)
	if err != nil {
		return Pair{}, err
	}

	accessClaims := claims
	accessClaims.SessionID = refresh.JTI
	access, err := c.Issue(subject, accessClaims, c.config.AccessTTL, TypeAccess)
	if err != nil {
		return Pair{}, err
	}

	return Pair{Access: access, Refresh: refresh}, nil
}

// Decode verifies raw and returns its claims.
//
// Errors are one of ErrExpired, ErrInvalidSignature or ErrMalformed (wrapped).
// A token whose exp is not after the codec clock reports ErrExpired, even if
// its signature is also bad. Leeway relaxes only the iat and nbf checks.
func (c *Codec) Decode(raw string) (*Claims, error) {
	mc := jwt.MapClaims{}
	token, err := c.parser().ParseWithClaims(raw, mc, c.key)
	if c.expired(mc) {
		return nil, ErrExpired
	}
	if err != nil {
		return nil, classify(err)
	}
	if !token.Valid {
		return nil, ErrMalformed
	}

	return claimsFromMap(mc)
}

// DecodeIgnoringExpiry verifies raw like Decode but accepts a token whose exp
// has passed. The signature, issuer and audience are still checked. Logout
// uses it so a lapsed access token can still revoke its session.
func (c *Codec) DecodeIgnoringExpiry(raw string) (*Claims, error) {
	mc := jwt.MapClaims{}
	token, err := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	).ParseWithClaims(raw, mc, c.key)
	if err != nil {
		return nil, classify(err)
	}
	if !token.Valid {
		return nil, ErrMalformed
	}
	if c.config.Issuer != "" {
		if iss, _ := mc.GetIssuer(); iss != c.config.Issuer {
			return nil, fmt.Errorf("%w: issuer mismatch", ErrMalformed)
		}
	}
	if c.config.Audience != "" {
		if aud, _ := mc.GetAudience(); !slices.Contains(aud, c.config.Audience) {
			return nil, fmt.Errorf("%w: audience mismatch", ErrMalformed)
		}
	}

	return claimsFromMap(mc)
}

func (c *Codec) parser() *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(c.config.Leeway),
		jwt.WithTimeFunc(c.now),
	}
	if c.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.config.Issuer))
	}
	if c.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(c.config.Audience))
	}
	return jwt.NewParser(opts...)
}

func (c *Codec) key(*jwt.Token) (any, error) {
	return c.config.Secret, nil
}

// expired reports whether mc carries an exp at or before the codec clock.
// It is evaluated before the signature verdict.
func (c *Codec) expired(mc jwt.MapClaims) bool {
	exp, err := mc.GetExpirationTime()
	return err == nil && exp != nil && !c.now().Before(exp.Time)
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

// Remaining returns how long the token is still valid at now, never negative.
func Remaining(claims *Claims, now time.Time) time.Duration {
	if claims == nil {
		return 0
	}
	left := claims.ExpiresAt.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

func claimsFromMap(mc jwt.MapClaims) (*Claims, error) {
	out := &Claims{}

	sub, err := mc.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	out.Subject = sub

	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing exp", ErrMalformed)
	}
	out.ExpiresAt = exp.Time

	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}

	out.ID = stringClaim(mc, claimID)
	if out.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrMalformed)
	}

	out.Type = TokenType(stringClaim(mc, claimType))
	if out.Type != TypeAccess && out.Type != TypeRefresh {
		return nil, fmt.Errorf("%w: unknown token type", ErrMalformed)
	}

	out.UserID = stringClaim(mc, claimUserID)
	out.DeviceID = stringClaim(mc, claimDeviceID)
	out.SessionID = stringClaim(mc, claimSession)
	out.LoginIP = stringClaim(mc, claimLoginIP)

	for name, value := range mc {
		if _, reserved := reservedClaims[name]; reserved {
			continue
		}
		if out.Custom == nil {
			out.Custom = make(map[string]any)
		}
		out.Custom[name] = value
	}

	return out, nil
}

func stringClaim(mc jwt.MapClaims, name string) string {
	v, _ := mc[name].(string)
	return v
}

func setString(mc jwt.MapClaims, name, value string) {
	if value != "" {
		mc[name] = value
	}
}
