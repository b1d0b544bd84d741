package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func findCookie(t *testing.T, cookies []*http.Cookie, name string) *http.Cookie {
	t.Helper()
	for _, cookie := range cookies {
		if cookie.Name == name {
			return cookie
		}
	}
	t.Fatalf("cookie %q not found in %v", name, cookies)
	return nil
}

func TestSetSessionCookieDefaults(t *testing.T) {
	h := &Handler{cookies: DefaultSessionCookiePolicy()}
	rec := httptest.NewRecorder()
	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	h.setSessionCookie(rec, "token", expires)

	cookie := findCookie(t, rec.Result().Cookies(), "session_id")
	if cookie.Value != "token" {
		t.Fatalf("expected cookie value token, got %q", cookie.Value)
	}
	if cookie.Path != "/" {
		t.Fatalf("expected session cookie Path=/, got %q", cookie.Path)
	}
	if !cookie.HttpOnly {
		t.Fatal("expected session cookie to be HttpOnly")
	}
	if !cookie.Secure {
		t.Fatal("expected session cookie to be Secure by default")
	}
	if cookie.SameSite != http.SameSiteStrictMode {
		t.Fatalf("expected SameSite=Strict, got %v", cookie.SameSite)
	}
	if !cookie.Expires.Equal(expires) {
		t.Fatalf("expected expiry %v, got %v", expires, cookie.Expires)
	}
}

func TestSetSessionCookieHonoursPolicy(t *testing.T) {
	h := &Handler{cookies: SessionCookiePolicy{Name: "sid", SameSite: http.SameSiteLaxMode, Insecure: true}}
	rec := httptest.NewRecorder()

	h.setSessionCookie(rec, "token", time.Now().Add(time.Hour))

	cookie := findCookie(t, rec.Result().Cookies(), "sid")
	if cookie.Secure {
		t.Fatal("expected Insecure policy to drop the Secure attribute")
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("expected SameSite=Lax, got %v", cookie.SameSite)
	}
}

func TestSetSessionCookieSkipsEmptyToken(t *testing.T) {
	h := &Handler{cookies: DefaultSessionCookiePolicy()}
	rec := httptest.NewRecorder()

	h.setSessionCookie(rec, "", time.Now().Add(time.Hour))

	if got := rec.Header().Values("Set-Cookie"); len(got) != 0 {
		t.Fatalf("expected no cookie for an empty token, got %v", got)
	}
}

func TestClearSessionCookieExpiresImmediately(t *testing.T) {
	h := &Handler{cookies: DefaultSessionCookiePolicy()}
	rec := httptest.NewRecorder()

	h.clearSessionCookie(rec)

	cookie := findCookie(t, rec.Result().Cookies(), "session_id")
	if cookie.MaxAge != -1 {
		t.Fatalf("expected MaxAge=-1, got %d", cookie.MaxAge)
	}
	if cookie.Value != "" {
		t.Fatalf("expected empty value, got %q", cookie.Value)
	}
	if !cookie.HttpOnly || !cookie.Secure || cookie.Path != "/" {
		t.Fatalf("expected removal cookie to keep session attributes, got %+v", cookie)
	}
}

func TestParseSameSite(t *testing.T) {
	tests := []struct {
		in      string
		want    http.SameSite
		wantErr bool
	}{
		{"", http.SameSiteStrictMode, false},
		{"Strict", http.SameSiteStrictMode, false},
		{"lax", http.SameSiteLaxMode, false},
		{" none ", http.SameSiteNoneMode, false},
		{"sometimes", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSameSite(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseSameSite(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if !tt.wantErr && got != tt.want {
			t.Fatalf("ParseSameSite(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
