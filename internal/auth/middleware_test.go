package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// protected runs RequireAuth in front of a handler that echoes the user ID.
// The rejecter records the error it was handed.
func protected(t *testing.T, ts *TokenService, gotErr *error) http.Handler {
	t.Helper()
	reject := func(w http.ResponseWriter, r *http.Request, err error) {
		*gotErr = err
		w.WriteHeader(http.StatusUnauthorized)
	}
	return RequireAuth(ts, reject, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserIDFromContext(r.Context())
		require.True(t, ok)
		_, _ = io.WriteString(w, id)
	}))
}

func TestRequireAuth(t *testing.T) {
	now := time.Now()
	ts := newTestTokenService(t, &now)
	token, err := ts.Issue("user-42")
	require.NoError(t, err)

	t.Run("cookie", func(t *testing.T) {
		var gotErr error
		req := httptest.NewRequest(http.MethodGet, "/api/auth/get-user", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
		rr := httptest.NewRecorder()

		protected(t, ts, &gotErr).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "user-42", rr.Body.String())
		assert.NoError(t, gotErr)
	})

	t.Run("bearer header", func(t *testing.T) {
		var gotErr error
		req := httptest.NewRequest(http.MethodGet, "/api/auth/get-user", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()

		protected(t, ts, &gotErr).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "user-42", rr.Body.String())
	})

	t.Run("missing token", func(t *testing.T) {
		var gotErr error
		req := httptest.NewRequest(http.MethodGet, "/api/auth/get-user", nil)
		rr := httptest.NewRecorder()

		protected(t, ts, &gotErr).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.True(t, errors.Is(gotErr, ErrNoToken))
	})

	t.Run("invalid token", func(t *testing.T) {
		var gotErr error
		req := httptest.NewRequest(http.MethodGet, "/api/auth/get-user", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "garbage"})
		rr := httptest.NewRecorder()

		protected(t, ts, &gotErr).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.True(t, errors.Is(gotErr, ErrInvalidToken))
	})
}

func TestSessionCookie(t *testing.T) {
	cfg := CookieConfig{Secure: true, SameSite: http.SameSiteStrictMode, MaxAge: DefaultTokenTTL}

	rr := httptest.NewRecorder()
	SetSessionCookie(rr, "tok", cfg)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, SessionCookieName, c.Name)
	assert.Equal(t, "tok", c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.Equal(t, 7*24*60*60, c.MaxAge)

	rr = httptest.NewRecorder()
	ClearSessionCookie(rr, cfg)
	cookies = rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "", cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestSessionCookie_MaxAge(t *testing.T) {
	tests := []struct {
		name   string
		maxAge time.Duration
		want   int
	}{
		{"one hour", time.Hour, 3600},
		{"fractional seconds round up", 1500 * time.Millisecond, 2},
		{"sub-second still expires", 3600 * time.Nanosecond, 1},
		{"unset", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			SetSessionCookie(rr, "tok", CookieConfig{MaxAge: tt.maxAge})
			cookies := rr.Result().Cookies()
			require.Len(t, cookies, 1)
			assert.Equal(t, tt.want, cookies[0].MaxAge)
		})
	}
}

func TestParseSameSite(t *testing.T) {
	cases := map[string]http.SameSite{
		"":       http.SameSiteLaxMode,
		"lax":    http.SameSiteLaxMode,
		"Strict": http.SameSiteStrictMode,
		"none":   http.SameSiteNoneMode,
	}
	for in, want := range cases {
		got, err := ParseSameSite(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseSameSite("sometimes")
	assert.Error(t, err)
}
