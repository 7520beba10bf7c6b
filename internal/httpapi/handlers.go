package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/middleware"
)

const maxBodyBytes = 64 << 10

// Service is the engine surface the handlers call.
type Service interface {
	Login(ctx context.Context, req goSession.LoginRequest) (*goSession.TokenResponse, error)
	Refresh(ctx context.Context, req goSession.RefreshRequest) (*goSession.TokenResponse, error)
	Logout(ctx context.Context, accessToken string) error
}

// Handlers serves /api/auth/*.
type Handlers struct {
	svc    Service
	logger zerolog.Logger
}

// NewHandlers returns handlers bound to svc.
func NewHandlers(svc Service, logger zerolog.Logger) *Handlers {
	return &Handlers{svc: svc, logger: logger}
}

// Mount registers the auth routes on r. /me requires an identity bound by
// middleware.Authenticate further up the chain.
func (h *Handlers) Mount(r chi.Router) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)
		r.Post("/logout", h.logout)
		r.With(middleware.RequireIdentity).Get("/me", h.me)
	})
}

type loginBody struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	DeviceID   string `json:"deviceId"`
	ClientType string `json:"clientType"`
	OS         string `json:"os"`
	Browser    string `json:"browser"`
}

type refreshBody struct {
	RefreshToken string `json:"refreshToken"`
	DeviceID     string `json:"deviceId"`
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := decode(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}

	resp, err := h.svc.Login(h.requestContext(r), goSession.LoginRequest{
		Username: body.Username,
		Password: body.Password,
		Client: goSession.ClientInfo{
			DeviceID:   body.DeviceID,
			ClientType: body.ClientType,
			OS:         body.OS,
			Browser:    body.Browser,
			UserAgent:  r.UserAgent(),
		},
		IP: middleware.ClientIP(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, resp)
}

func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshBody
	if err := decode(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}

	resp, err := h.svc.Refresh(h.requestContext(r), goSession.RefreshRequest{
		RefreshToken: body.RefreshToken,
		DeviceID:     body.DeviceID,
		IP:           middleware.ClientIP(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, resp)
}

// logout accepts the access token even when its session is already gone, so
// it reads the header directly instead of requiring a bound identity.
func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	token, found := middleware.BearerToken(r)
	if !found {
		h.fail(w, r, goSession.ErrInvalidToken)
		return
	}
	if err := h.svc.Logout(h.requestContext(r), token); err != nil {
		h.fail(w, r, err)
		return
	}
	ok(w, nil)
}

func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	ok(w, id)
}

func (h *Handlers) requestContext(r *http.Request) context.Context {
	ctx := goSession.WithClientIP(r.Context(), middleware.ClientIP(r))
	return goSession.WithUserAgent(ctx, r.UserAgent())
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := middleware.StatusFor(err)
	event := h.logger.Info()
	if status >= http.StatusInternalServerError {
		event = h.logger.Error()
	}
	event.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("auth request failed")
	middleware.WriteError(w, err)
}

func ok(w http.ResponseWriter, data any) {
	middleware.WriteJSON(w, http.StatusOK, middleware.Envelope{Code: http.StatusOK, Message: "ok", Data: data})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("%w: content type %q", goSession.ErrInvalidRequest, ct)
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: body too large", goSession.ErrInvalidRequest)
		}
		return fmt.Errorf("%w: %v", goSession.ErrInvalidRequest, err)
	}
	return nil
}
