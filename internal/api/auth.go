package api

import (
	"context"
	"errors"
	"net/http"

	"vivpro-songs/internal/apperr"
	"vivpro-songs/internal/auth"
	"vivpro-songs/internal/observability/logging"
)

type contextKey string

const identityContextKey contextKey = "identity"

// ContextWithIdentity stores the authenticated caller in the context.
func ContextWithIdentity(ctx context.Context, identity auth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the authenticated caller if present.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(auth.Identity)
	return identity, ok
}

// RequireSession rejects requests without a valid session.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := h.gate.Require(r)
		if err != nil {
			h.authFailed(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(h.withIdentity(r.Context(), identity)))
	})
}

// OptionalSession lets anonymous requests through but still rejects a token
// that is present and invalid.
func (h *Handler) OptionalSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok, err := h.gate.Optional(r)
		if err != nil {
			h.authFailed(w, r, err)
			return
		}
		if ok {
			r = r.WithContext(h.withIdentity(r.Context(), identity))
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) withIdentity(ctx context.Context, identity auth.Identity) context.Context {
	ctx = ContextWithIdentity(ctx, identity)
	return logging.WithUserID(ctx, identity.UserID)
}

func (h *Handler) authFailed(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.AuthError
	if errors.As(err, &ae) && ae.Reason == apperr.Expired {
		h.metrics.SessionEvent("expired", 1)
	}
	h.writeError(w, r, err)
}

// requireIdentity reads the identity placed by RequireSession. Its absence
// means the route was registered without the middleware.
func (h *Handler) requireIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apperr.NewAuthError(apperr.Unauthenticated))
		return auth.Identity{}, false
	}
	return identity, true
}
