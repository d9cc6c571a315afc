package http

import (
	"crypto/subtle"
	"net/http"

	"agenthud.router/internal/core/domain"
	"agenthud.router/internal/core/logger"
)

// TokenHeader carries the shared secret on every request and handshake.
const TokenHeader = "X-AgentHUD-Token"

// TokenAuth checks the shared secret.
type TokenAuth struct {
	token []byte
}

func NewTokenAuth(token string) *TokenAuth {
	return &TokenAuth{token: []byte(token)}
}

// Valid reports whether r presents the configured token.
func (a *TokenAuth) Valid(r *http.Request) bool {
	got := r.Header.Get(TokenHeader)
	if got == "" || len(a.token) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), a.token) == 1
}

// Middleware rejects requests without a valid token before any handler
// (and so any registry access) runs.
func (a *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Valid(r) {
			recordAuthFailure("http")
			logger.WarnContext(r.Context(), "Rejected request: invalid token", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, domain.ActionResponse{Success: false, Error: domain.CodeInvalidToken})
			return
		}
		next.ServeHTTP(w, r)
	})
}
