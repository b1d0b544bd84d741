package auth

import (
	"net/http"
	"strings"
	"time"

	"vivpro-songs/internal/apperr"
)

// TokenTransport extracts the session token from a request. A deployment uses
// exactly one transport.
type TokenTransport interface {
	Token(r *http.Request) (string, bool)
}

// CookieTransport reads the token from a named cookie.
type CookieTransport struct {
	Name string
}

// Token returns the cookie value when present and non-empty.
func (c CookieTransport) Token(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(c.Name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// BearerTransport reads the token from an "Authorization: Bearer" header.
type BearerTransport struct{}

// Token returns the bearer credential. Other schemes count as no token.
func (BearerTransport) Token(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Identity is the authenticated caller attached to a request.
type Identity struct {
	SessionID string
	UserID    string
	ExpiresAt time.Time
}

// Gate resolves request tokens into identities. It never performs ownership
// checks; those belong to the operations that know the resource.
type Gate struct {
	sessions  *SessionManager
	transport TokenTransport
}

// NewGate binds a session manager to a token transport.
func NewGate(sessions *SessionManager, transport TokenTransport) *Gate {
	return &Gate{sessions: sessions, transport: transport}
}

// Transport exposes the configured token transport.
func (g *Gate) Transport() TokenTransport {
	return g.transport
}

// Require resolves the caller or fails with an AuthError.
func (g *Gate) Require(r *http.Request) (Identity, error) {
	token, ok := g.transport.Token(r)
	if !ok {
		return Identity{}, apperr.NewAuthError(apperr.Unauthenticated)
	}
	return g.resolve(r, token)
}

// Optional resolves the caller when a token is present. No token yields
// ok=false without error; a present but invalid token still fails.
func (g *Gate) Optional(r *http.Request) (Identity, bool, error) {
	token, ok := g.transport.Token(r)
	if !ok {
		return Identity{}, false, nil
	}
	identity, err := g.resolve(r, token)
	if err != nil {
		return Identity{}, false, err
	}
	return identity, true, nil
}

func (g *Gate) resolve(r *http.Request, token string) (Identity, error) {
	session, err := g.sessions.Validate(r.Context(), token)
	if err != nil {
		return Identity{}, err
	}
	return Identity{SessionID: session.ID, UserID: session.UserID, ExpiresAt: session.ExpiresAt}, nil
}
