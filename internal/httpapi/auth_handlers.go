package httpapi

import (
	"net/http"
	"time"

	"passgate.org/internal/audit"
	"passgate.org/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	BadgeID   int64     `json:"badge_id"`
	Role      auth.Role `json:"role"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if a.signer == nil {
		writeProblem(w, r, http.StatusServiceUnavailable, "AuthUnavailable", "authentication is not configured")
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	id, err := a.engine.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{"email": req.Email})
		writeError(w, r, err)
		return
	}

	token, expiresAt, err := a.signer.Issue(id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx := auth.ContextWithIdentity(r.Context(), id)
	_ = audit.LogEvent(ctx, "auth.token.issued", map[string]any{
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		BadgeID:   id.Badge,
		Role:      id.Role,
	})
}
