package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultSessionCookieName is the cookie carrying the session id.
const DefaultSessionCookieName = "session_id"

// SessionCookiePolicy holds the attributes of the session cookie. The cookie
// is always HttpOnly and scoped to the whole site.
type SessionCookiePolicy struct {
	Name     string
	SameSite http.SameSite
	// Insecure drops the Secure attribute. Only local plain-HTTP setups
	// should set it.
	Insecure bool
}

func DefaultSessionCookiePolicy() SessionCookiePolicy {
	return SessionCookiePolicy{
		Name:     DefaultSessionCookieName,
		SameSite: http.SameSiteStrictMode,
	}
}

// ParseSameSite maps "strict", "lax" or "none" onto http.SameSite.
func ParseSameSite(value string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "strict":
		return http.SameSiteStrictMode, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("unknown SameSite mode %q", value)
	}
}

func (p SessionCookiePolicy) name() string {
	if p.Name == "" {
		return DefaultSessionCookieName
	}
	return p.Name
}

func (p SessionCookiePolicy) sameSite() http.SameSite {
	if p.SameSite == 0 {
		return http.SameSiteStrictMode
	}
	return p.SameSite
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	if token == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookies.name(),
		Value:    token,
		Path:     "/",
		Expires:  expires.UTC(),
		HttpOnly: true,
		Secure:   !h.cookies.Insecure,
		SameSite: h.cookies.sameSite(),
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookies.name(),
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !h.cookies.Insecure,
		SameSite: h.cookies.sameSite(),
	})
}
