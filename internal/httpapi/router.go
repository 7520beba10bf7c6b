package httpapi

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/goSession/internal/telemetry"
	"github.com/MrEthical07/goSession/middleware"
)

// RouterOptions wires the HTTP surface of cmd/authd.
type RouterOptions struct {
	Service       Service
	Authenticator middleware.Authenticator
	Whitelist     []string
	// Ready reports whether the backends answer. Nil means always ready.
	Ready   func(context.Context) error
	Metrics http.Handler
	// AllowedOrigins enables CORS for the listed origins. Empty disables
	// CORS; credentials are never allowed together with "*".
	AllowedOrigins []string
	// IPs derives caller addresses. Nil trusts no proxy header.
	IPs            *middleware.IPResolver
	RequestsPerMin int
	ServiceName    string
	Logger         zerolog.Logger
}

// Router builds the chi router: CORS, rate limit, tracing and the
// authentication filter, then health, readiness, metrics and auth routes.
func Router(opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	limit := opts.RequestsPerMin
	if limit <= 0 {
		limit = 100
	}

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: !slices.Contains(opts.AllowedOrigins, "*"),
			MaxAge:           int((10 * time.Minute).Seconds()),
		}))
	}
	r.Use(httprate.Limit(limit, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		return opts.IPs.ClientIP(r), nil
	})))
	if opts.ServiceName != "" {
		r.Use(telemetry.Middleware(opts.ServiceName))
	}
	r.Use(middleware.Authenticate(opts.Authenticator,
		middleware.WithWhitelist(opts.Whitelist...),
		middleware.WithLogger(opts.Logger),
		middleware.WithIPResolver(opts.IPs),
	))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := opts.Ready(ctx); err != nil {
				opts.Logger.Warn().Err(err).Msg("readiness check failed")
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	NewHandlers(opts.Service, opts.Logger).Mount(r)
	return r
}
