package api

import (
	"errors"
	"net/http"
	"time"

	"vivpro-songs/internal/apperr"
)

type tokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login handles POST /api/sessions/. In cookie mode the session id is set as
// a cookie and the body is empty; in bearer mode it is returned as a token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, r, err)
		return
	}
	session, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidCredentials) {
			h.metrics.LoginAttempt(false)
		}
		h.writeError(w, r, err)
		return
	}
	h.metrics.LoginAttempt(true)
	h.metrics.SessionEvent("created", 1)

	if h.cookieMode() {
		h.setSessionCookie(w, session.ID, session.ExpiresAt)
		writeJSON(w, http.StatusCreated, nil)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{
		Token:     session.ID,
		TokenType: "Bearer",
		ExpiresAt: session.ExpiresAt.UTC(),
	})
}

// Logout handles DELETE /api/sessions/.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	if err := h.accounts.Logout(r.Context(), identity.SessionID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.metrics.SessionEvent("deleted", 1)
	if h.cookieMode() {
		h.clearSessionCookie(w)
	}
	writeJSON(w, http.StatusNoContent, nil)
}
