// Package service holds the authentication and account business logic.
//
// AuthService sits between the HTTP handlers and the storage/token layers:
//
//	AuthHandler (HTTP) → AuthService (resolve identity) → UserRepository (DB)
//	                   ↘ TokenService (session token)
//
// It never touches http.Request or cookies; the handler owns transport.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/sakif/readme-studio/internal/apperror"
	"github.com/sakif/readme-studio/internal/auth"
	"github.com/sakif/readme-studio/internal/model"
	"github.com/sakif/readme-studio/internal/repository"
)

// DefaultPhoneRegion is used to parse phone numbers written without a
// leading +<country code>.
const DefaultPhoneRegion = "US"

// AuthService resolves login identities to user records and issues sessions.
type AuthService struct {
	users       repository.UserRepository
	tokens      *auth.TokenService
	passwords   *auth.PasswordService
	logger      *slog.Logger
	phoneRegion string
}

// AuthOption customizes an AuthService.
type AuthOption func(*AuthService)

// WithPhoneRegion sets the region used for numbers without a country code.
func WithPhoneRegion(region string) AuthOption {
	return func(s *AuthService) {
		if region != "" {
			s.phoneRegion = strings.ToUpper(region)
		}
	}
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
	opts ...AuthOption,
) *AuthService {
	s := &AuthService{
		users:       users,
		tokens:      tokens,
		passwords:   passwords,
		logger:      logger,
		phoneRegion: DefaultPhoneRegion,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AuthResult bundles the resolved user and the issued session token so the
// handler can set the cookie and write the body in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// Login resolves the identity and issues a session token for the result.
func (s *AuthService) Login(ctx context.Context, id model.Identity) (*AuthResult, error) {
	user, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for user %s: %w", user.ID, err)
	}

	// Secrets were only needed for resolution; never hand them back out.
	user.PasswordHash = ""
	user.GitHubToken = ""

	return &AuthResult{User: user, Token: token}, nil
}

// Resolve finds or creates the user an identity belongs to.
//
// Lookup is by email alone, whatever the provider: a manual account and a
// Google login with the same address resolve to the same record. Each call
// performs one read and at most one write.
func (s *AuthService) Resolve(ctx context.Context, id model.Identity) (*model.User, error) {
	id.Email = strings.ToLower(strings.TrimSpace(id.Email))
	id.Name = strings.TrimSpace(id.Name)
	if id.Email == "" {
		return nil, apperror.ValidationFailed("email", "email required")
	}

	phone, err := s.normalizePhone(id.PhoneNumber)
	if err != nil {
		return nil, err
	}
	id.PhoneNumber = phone

	switch c := id.Credentials.(type) {
	case model.ManualCredentials:
		return s.resolveManual(ctx, id, c)
	case model.OAuthCredentials:
		return s.resolveOAuth(ctx, id, c)
	case nil:
		return nil, apperror.ValidationFailed("provider", "credentials required")
	default:
		return nil, fmt.Errorf("service/auth: unsupported credentials %T", c)
	}
}

// resolveManual signs up an unknown email or checks the password of a known one.
func (s *AuthService) resolveManual(ctx context.Context, id model.Identity, c model.ManualCredentials) (*model.User, error) {
	existing, err := s.users.GetByEmail(ctx, id.Email, repository.WithSecrets())
	switch {
	case err == nil:
		if existing.PasswordHash == "" {
			// Account created through a provider; it has no password to check.
			return nil, apperror.InvalidCredentials()
		}
		if err := s.passwords.Verify(existing.PasswordHash, c.Password); err != nil {
			if errors.Is(err, auth.ErrPasswordMismatch) {
				s.logger.Info("manual login rejected", slog.String("userID", existing.ID))
				return nil, apperror.InvalidCredentials()
			}
			return nil, fmt.Errorf("service/auth: verifying password: %w", err)
		}
		return existing, nil

	case errors.Is(err, apperror.ErrNotFound):
		if c.Password == "" {
			return nil, apperror.ValidationFailed("password", "password required")
		}
		hash, err := s.passwords.Hash(c.Password)
		if err != nil {
			return nil, err
		}
		user := newUser(id, model.ProviderManual)
		user.PasswordHash = hash
		if err := s.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("service/auth: creating manual user: %w", err)
		}
		s.logger.Info("user registered", slog.String("userID", user.ID), slog.String("provider", string(user.Provider)))
		return user, nil

	default:
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}
}

// resolveOAuth trusts the identity provider's profile: it creates the record
// on first sight and otherwise only refreshes a supplied GitHub token.
func (s *AuthService) resolveOAuth(ctx context.Context, id model.Identity, c model.OAuthCredentials) (*model.User, error) {
	if c.Source != model.ProviderGoogle && c.Source != model.ProviderGitHub {
		return nil, apperror.ValidationFailed("provider", fmt.Sprintf("unsupported provider %q", c.Source))
	}

	existing, err := s.users.GetByEmail(ctx, id.Email)
	switch {
	case err == nil:
		if c.AccessToken != "" {
			if err := s.users.UpdateGitHubToken(ctx, existing.ID, c.AccessToken); err != nil {
				return nil, fmt.Errorf("service/auth: refreshing github token: %w", err)
			}
			s.logger.Info("github token refreshed", slog.String("userID", existing.ID))
		}
		return existing, nil

	case errors.Is(err, apperror.ErrNotFound):
		user := newUser(id, c.Source)
		user.GitHubToken = c.AccessToken
		if err := s.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("service/auth: creating %s user: %w", c.Source, err)
		}
		s.logger.Info("user registered", slog.String("userID", user.ID), slog.String("provider", string(user.Provider)))
		return user, nil

	default:
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}
}

// GetUserByID returns the user for the given internal ID.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID must not be empty")
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// normalizePhone returns the E.164 form of raw, or "" when raw is blank.
func (s *AuthService) normalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	num, err := phonenumbers.Parse(raw, s.phoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", apperror.ValidationFailed("phoneNumber", "invalid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func newUser(id model.Identity, provider model.Provider) *model.User {
	avatar := strings.TrimSpace(id.Avatar)
	if avatar == "" {
		avatar = model.DefaultAvatar
	}
	return &model.User{
		Name:        id.Name,
		Email:       id.Email,
		PhoneNumber: id.PhoneNumber,
		Avatar:      avatar,
		Provider:    provider,
	}
}
