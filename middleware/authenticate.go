package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	goSession "github.com/MrEthical07/goSession"
)

// Authenticator is the subset of *goSession.Engine the filter needs.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*goSession.Identity, error)
}

// ErrMissingToken is attached as the failure when no bearer token was sent.
var ErrMissingToken = errors.New("missing bearer token")

type identityHolder struct {
	mu       sync.RWMutex
	identity *goSession.Identity
	failure  error
}

func (h *identityHolder) set(id *goSession.Identity, failure error) {
	h.mu.Lock()
	h.identity, h.failure = id, failure
	h.mu.Unlock()
}

func (h *identityHolder) clear() {
	h.set(nil, nil)
}

type holderContextKey struct{}

// IdentityFromContext returns the identity bound by Authenticate. It reports
// false outside the filter, for unauthenticated requests and once the
// request has completed.
func IdentityFromContext(ctx context.Context) (*goSession.Identity, bool) {
	h, ok := ctx.Value(holderContextKey{}).(*identityHolder)
	if !ok {
		return nil, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.identity, h.identity != nil
}

// FailureFromContext returns why a presented token was rejected. Requests
// without a token report ErrMissingToken.
func FailureFromContext(ctx context.Context) error {
	h, ok := ctx.Value(holderContextKey{}).(*identityHolder)
	if !ok {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.failure
}

type options struct {
	whitelist *matcher
	logger    zerolog.Logger
	ips       *IPResolver
}

// Option configures Authenticate.
type Option func(*options)

// WithWhitelist skips authentication for paths matching any pattern. See
// FilterConfig.Whitelist for the syntax.
func WithWhitelist(patterns ...string) Option {
	return func(o *options) { o.whitelist = newMatcher(patterns) }
}

// WithLogger sets the logger rejected tokens are reported to.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithIPResolver sets how the caller address is derived. Without it no
// proxy header is trusted.
func WithIPResolver(resolver *IPResolver) Option {
	return func(o *options) { o.ips = resolver }
}

// Authenticate binds the identity of a valid bearer token to the request.
//
// The filter never rejects a request itself: a missing or invalid token
// leaves the request unauthenticated and the failure is available through
// FailureFromContext. Pair it with RequireIdentity on protected routes. The
// identity is cleared when the handler returns, panics included.
func Authenticate(auth Authenticator, opts ...Option) func(http.Handler) http.Handler {
	o := options{whitelist: newMatcher(nil), logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := o.ips.ClientIP(r)
			ctx := withResolvedIP(r.Context(), ip)
			ctx = goSession.WithClientIP(ctx, ip)
			if o.whitelist.match(r.URL.Path) {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			holder := &identityHolder{}
			defer holder.clear()
			ctx = context.WithValue(ctx, holderContextKey{}, holder)
			ctx = goSession.WithUserAgent(ctx, r.UserAgent())

			token, ok := BearerToken(r)
			switch {
			case !ok:
				holder.set(nil, ErrMissingToken)
			case auth == nil:
				holder.set(nil, goSession.ErrEngineNotReady)
			default:
				id, err := auth.Authenticate(ctx, token)
				if err != nil {
					o.logger.Warn().
						Err(err).
						Str("path", r.URL.Path).
						Str("ip", ip).
						Msg("access token rejected")
					holder.set(nil, err)
				} else {
					holder.set(id, nil)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token of an "Authorization: Bearer" header. The
// scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	return parseBearer(r.Header.Get("Authorization"))
}

func parseBearer(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
