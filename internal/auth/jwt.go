// Package auth issues and validates session tokens, hashes passwords, and
// carries the session between requests in an HttpOnly cookie.
//
// SESSION FLOW:
//  1. A login endpoint resolves the user and calls TokenService.Issue
//  2. The handler sets the token as the access.token cookie AND echoes it in
//     the JSON body (browser clients use the cookie, others store the body copy)
//  3. RequireAuth reads the cookie on later requests, validates the token and
//     puts the user ID in the request context
//  4. Logout clears the cookie; the token itself stays valid until it expires
//     because nothing is stored server side
//
// Token layout (HS256):
//
//	{"sub":"<user id>","iss":"readme-studio","iat":...,"exp":iat+7d,"jti":"<uuid>"}
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTokenTTL is how long a session token is accepted. There is no
	// refresh: once it expires the user signs in again.
	DefaultTokenTTL = 7 * 24 * time.Hour

	tokenIssuer     = "readme-studio"
	minSecretLength = 16
)

var (
	// ErrNoToken means the request did not carry a session token at all.
	ErrNoToken = errors.New("auth: no session token")
	// ErrInvalidToken covers bad signatures, wrong algorithms, foreign
	// issuers, malformed input and expiry.
	ErrInvalidToken = errors.New("auth: invalid session token")
)

// Claims is the session token payload. Subject holds the user ID.
type Claims struct {
	jwt.RegisteredClaims
}

// UserID returns the token subject.
func (c *Claims) UserID() string {
	return c.Subject
}

// TokenService handles session token creation and validation.
//
// It is built once at startup from the configured secret and shared by every
// request; it holds no mutable state.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService. A zero ttl selects DefaultTokenTTL.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", minSecretLength)
	}
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	if ttl < 0 {
		return nil, fmt.Errorf("auth: token ttl must be positive, got %s", ttl)
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL reports the lifetime of issued tokens. The session cookie uses the
// same value for its Max-Age.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue creates and signs a session token for the given user ID.
func (s *TokenService) Issue(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("auth: cannot issue a token without a subject")
	}

	now := s.now()
	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a session token and returns its claims.
//
// Only HS256 is accepted; jwt.WithValidMethods blocks "none" and
// algorithm-confusion tokens. Expiry is required and checked against the
// service clock.
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrNoToken
	}

	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: unexpected claims", ErrInvalidToken)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}

	return c, nil
}
