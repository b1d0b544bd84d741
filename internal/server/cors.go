package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// CORSConfig lists the browser origins allowed to call the API with
// credentials. With no origins only same-origin requests are permitted.
type CORSConfig struct {
	Origins []string
}

// Browsers send the session either as the cookie or as a bearer token, so
// credentials are always allowed and Authorization is always accepted.
const (
	corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders = "Authorization, Content-Type, " + requestIDHeader
	corsMaxAge       = "600"
)

type corsPolicy map[string]struct{}

func newCORSPolicy(cfg CORSConfig) (corsPolicy, error) {
	policy := make(corsPolicy, len(cfg.Origins))
	for _, raw := range cfg.Origins {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		origin, err := canonicalOrigin(raw)
		if err != nil {
			return nil, fmt.Errorf("parse origin %q: %w", raw, err)
		}
		policy[origin] = struct{}{}
	}
	return policy, nil
}

// canonicalOrigin lowercases scheme and host so header values compare
// byte-for-byte with the configured list.
func canonicalOrigin(origin string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("origin must include scheme and host")
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), nil
}

func (p corsPolicy) allows(r *http.Request, origin string) bool {
	canonical, err := canonicalOrigin(origin)
	if err != nil {
		return false
	}
	if _, ok := p[canonical]; ok {
		return true
	}
	return canonical == requestOrigin(r)
}

// requestOrigin is the origin the request was addressed to.
func requestOrigin(r *http.Request) string {
	host := strings.ToLower(strings.TrimSpace(r.Host))
	if host == "" {
		return ""
	}
	if r.TLS != nil {
		return "https://" + host
	}
	return "http://" + host
}

func corsMiddleware(policy corsPolicy, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !policy.allows(r, origin) {
			if logger != nil {
				requestLogger(logger, r).Warn("blocked CORS origin", "origin", origin)
			}
			writeMiddlewareError(w, http.StatusForbidden, "origin_not_allowed", "origin not allowed")
			return
		}

		header := w.Header()
		header.Set("Access-Control-Allow-Origin", origin)
		header.Set("Access-Control-Allow-Credentials", "true")
		header.Set("Access-Control-Expose-Headers", requestIDHeader)
		header.Add("Vary", "Origin")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			header.Set("Access-Control-Allow-Methods", corsAllowMethods)
			header.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			header.Set("Access-Control-Max-Age", corsMaxAge)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
