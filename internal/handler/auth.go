package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/sakif/readme-studio/internal/apperror"
	"github.com/sakif/readme-studio/internal/auth"
	"github.com/sakif/readme-studio/internal/model"
	"github.com/sakif/readme-studio/internal/service"
)

// AuthService is the part of *service.AuthService the handlers call.
type AuthService interface {
	Login(ctx context.Context, id model.Identity) (*service.AuthResult, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// LoginRecorder counts login attempts. *middleware.Metrics satisfies it.
type LoginRecorder interface {
	Login(provider, outcome string)
}

// AuthHandler serves the /api/auth endpoints.
//
//   - HandleGoogleLogin / HandleGitHubLogin → accept a profile the front end
//     got from the identity provider, find-or-create the user, set the cookie
//   - HandleManualLogin → email/password sign-up and sign-in in one endpoint
//   - HandleLogout      → clear the cookie
//   - HandleGetUser     → return the signed-in user (RequireAuth route)
type AuthHandler struct {
	svc     AuthService
	cookie  auth.CookieConfig
	metrics LoginRecorder
	logger  *slog.Logger
}

// NewAuthHandler creates an AuthHandler. metrics may be nil.
func NewAuthHandler(svc AuthService, cookie auth.CookieConfig, metrics LoginRecorder, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, cookie: cookie, metrics: metrics, logger: logger}
}

// providerLoginRequest is the body of google-login and github-login.
type providerLoginRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Avatar      string `json:"avatar"`
	Provider    string `json:"provider"`
	GitHubToken string `json:"githubToken"`
	Password    string `json:"password"`
}

func (r providerLoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Name, validation.Length(0, 200)),
		validation.Field(&r.PhoneNumber, validation.Length(0, 32)),
		validation.Field(&r.Avatar, validation.Length(0, 2048), is.URL),
		validation.Field(&r.Provider, validation.In(
			string(model.ProviderManual),
			string(model.ProviderGoogle),
			string(model.ProviderGitHub),
		)),
	)
}

// manualLoginRequest is the body of manual-login. Password is checked by
// the service: a missing one is only an error when the email is new.
type manualLoginRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r manualLoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.FullName, validation.Length(0, 200)),
	)
}

// loginResponse is the body of every successful login.
type loginResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    *model.User `json:"user"`
}

// HandleGoogleLogin handles POST /api/auth/google-login.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	h.handleProviderLogin(w, r, model.ProviderGoogle)
}

// HandleGitHubLogin handles POST /api/auth/github-login.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	h.handleProviderLogin(w, r, model.ProviderGitHub)
}

// handleProviderLogin builds an Identity from the body. The endpoint's own
// provider applies unless the body names another valid one.
func (h *AuthHandler) handleProviderLogin(w http.ResponseWriter, r *http.Request, endpoint model.Provider) {
	var req providerLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, endpoint, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))
	if err := req.Validate(); err != nil {
		h.fail(w, endpoint, validationError(err, "email", "name", "phoneNumber", "avatar", "provider"))
		return
	}

	provider := endpoint
	if req.Provider != "" {
		p, err := model.ParseProvider(req.Provider)
		if err != nil {
			h.fail(w, endpoint, apperror.ValidationFailed("provider", err.Error()))
			return
		}
		provider = p
	}

	id := model.Identity{
		Name:        req.Name,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Avatar:      req.Avatar,
	}
	if provider == model.ProviderManual {
		id.Credentials = model.ManualCredentials{Password: req.Password}
	} else {
		id.Credentials = model.OAuthCredentials{Source: provider, AccessToken: strings.TrimSpace(req.GitHubToken)}
	}

	h.login(w, r, provider, id)
}

// HandleManualLogin handles POST /api/auth/manual-login.
//
// An unknown email signs up; a known email signs in. A wrong password is a
// 400 with "Invalid credentials" and no cookie.
func (h *AuthHandler) HandleManualLogin(w http.ResponseWriter, r *http.Request) {
	var req manualLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, model.ProviderManual, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := req.Validate(); err != nil {
		h.fail(w, model.ProviderManual, validationError(err, "email", "fullName"))
		return
	}

	h.login(w, r, model.ProviderManual, model.Identity{
		Name:        req.FullName,
		Email:       req.Email,
		Credentials: model.ManualCredentials{Password: req.Password},
	})
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, provider model.Provider, id model.Identity) {
	result, err := h.svc.Login(r.Context(), id)
	if err != nil {
		h.fail(w, provider, err)
		return
	}

	h.record(provider, "success")
	h.logger.Info("login succeeded",
		slog.String("userID", result.User.ID),
		slog.String("provider", string(provider)),
	)

	auth.SetSessionCookie(w, result.Token, h.cookie)
	writeJSON(w, http.StatusOK, loginResponse{
		Success: true,
		Message: "Login successful",
		Token:   result.Token,
		User:    result.User,
	})
}

func (h *AuthHandler) fail(w http.ResponseWriter, provider model.Provider, err error) {
	_, kind := errorStatus(err)
	h.record(provider, kind)
	writeError(w, h.logger, err)
}

func (h *AuthHandler) record(provider model.Provider, outcome string) {
	if h.metrics != nil {
		h.metrics.Login(string(provider), outcome)
	}
}

// HandleLogout handles POST /api/auth/logout.
//
// Sessions are stateless, so logging out only deletes the cookie. The token
// itself stays valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, h.cookie)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out successfully",
	})
}

// HandleGetUser handles GET /api/auth/get-user behind RequireAuth.
func (h *AuthHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthenticated())
		return
	}

	user, err := h.svc.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    user,
	})
}
