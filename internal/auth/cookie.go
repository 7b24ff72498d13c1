package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SessionCookieName is the cookie the browser carries between requests.
const SessionCookieName = "access.token"

// CookieConfig holds the attributes of the session cookie.
//
// HttpOnly is always set. Secure should be on whenever the app is served
// over HTTPS; SameSite=None additionally requires Secure in browsers.
type CookieConfig struct {
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

// ParseSameSite maps a config string to an http.SameSite value.
func ParseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	}
	return 0, fmt.Errorf("auth: unknown SameSite mode %q", s)
}

// SetSessionCookie attaches the session token to the response. A positive
// MaxAge shorter than a second is rounded up so the cookie still expires.
func SetSessionCookie(w http.ResponseWriter, token string, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAgeSeconds(cfg.MaxAge),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	})
}

// ClearSessionCookie tells the browser to drop the session cookie.
// The attributes must match the ones used when setting it.
func ClearSessionCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	})
}

func maxAgeSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
