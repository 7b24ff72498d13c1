package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// contextKey is unexported so only this package can read or write the
// user ID stored in a request context.
type contextKey string

const userIDKey contextKey = "userID"

// Rejecter writes the response for a request that failed authentication.
// The handler package supplies one so error bodies share a single format.
type Rejecter func(w http.ResponseWriter, r *http.Request, err error)

// RequireAuth enforces a valid session on protected routes.
//
// The token is read from the access.token cookie, falling back to an
// "Authorization: Bearer" header for clients that keep the token from the
// login response body. On failure reject is called with ErrNoToken or an
// error wrapping ErrInvalidToken and the chain stops.
func RequireAuth(tokens *TokenService, reject Rejecter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := tokens.Validate(tokenFromRequest(r))
			if err != nil {
				if !errors.Is(err, ErrNoToken) {
					logger.Warn("session token rejected",
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)
				}
				reject(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.UserID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext retrieves the authenticated user's ID from the request context.
// Returns ("", false) outside a RequireAuth-protected route.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// ContextWithUserID is the inverse of UserIDFromContext. Handler tests use it
// to call protected handlers without going through the middleware.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.Fields(header)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}
