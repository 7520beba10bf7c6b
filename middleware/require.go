package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
)

// Envelope is the JSON body shape shared by the HTTP API.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an envelope whose message never reveals which check failed.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	WriteJSON(w, status, Envelope{Code: status, Message: goSession.PublicMessage(err)})
}

// StatusFor maps an engine error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, goSession.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, goSession.ErrLoginRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, goSession.ErrBackendUnavailable), errors.Is(err, goSession.ErrEngineNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, goSession.ErrSessionPersistFailure):
		return http.StatusInternalServerError
	default:
		return http.StatusUnauthorized
	}
}

// RequireIdentity answers 401 unless Authenticate bound an identity.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			err := FailureFromContext(r.Context())
			if err == nil || errors.Is(err, ErrMissingToken) {
				err = goSession.ErrInvalidToken
			}
			WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
