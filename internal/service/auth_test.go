package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/readme-studio/internal/apperror"
	"github.com/sakif/readme-studio/internal/auth"
	"github.com/sakif/readme-studio/internal/model"
	"github.com/sakif/readme-studio/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory repository.UserRepository keyed by email.
// Like the real stores it hides secrets unless asked and reports duplicate
// emails as conflicts.
type fakeUserRepo struct {
	mu      sync.Mutex
	byEmail map[string]*model.User
	byID    map[string]*model.User
	nextID  int

	// counters let tests assert how many writes a call made
	creates      int
	tokenUpdates int

	// set to a non-nil error to simulate a database failure
	createErr error
	getErr    error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byEmail: make(map[string]*model.User),
		byID:    make(map[string]*model.User),
		nextID:  1,
	}
}

func (f *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byEmail[user.Email]; ok {
		return apperror.Conflict("email", user.Email)
	}
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	f.nextID++
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt

	copied := *user
	f.byEmail[user.Email] = &copied
	f.byID[user.ID] = &copied
	f.creates++
	return nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string, opts ...repository.ReadOption) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read(f.byEmail[email], email, opts)
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string, opts ...repository.ReadOption) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read(f.byID[id], id, opts)
}

func (f *fakeUserRepo) read(u *model.User, key string, opts []repository.ReadOption) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if u == nil {
		return nil, apperror.NotFound("user", key)
	}
	out := *u
	if !repository.ApplyReadOptions(opts).IncludeSecrets {
		out.PasswordHash = ""
		out.GitHubToken = ""
	}
	return &out, nil
}

func (f *fakeUserRepo) UpdateGitHubToken(ctx context.Context, id, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.byID[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.GitHubToken = token
	u.UpdatedAt = time.Now().UTC()
	f.tokenUpdates++
	return nil
}

// stored returns the raw record for email, secrets included.
func (f *fakeUserRepo) stored(t *testing.T, email string) *model.User {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byEmail[email]
	if !ok {
		t.Fatalf("no stored user for %q", email)
	}
	out := *u
	return &out
}

func (f *fakeUserRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byEmail)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTokenService(t *testing.T) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", 0)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// newTestAuthService returns an AuthService wired with fake dependencies and
// the cheapest bcrypt cost.
func newTestAuthService(t *testing.T, repo *fakeUserRepo) (*AuthService, *auth.TokenService) {
	t.Helper()
	ts := newTestTokenService(t)
	return NewAuthService(repo, ts, auth.NewPasswordServiceForTest(), discardLogger()), ts
}

func manual(name, email, password string) model.Identity {
	return model.Identity{Name: name, Email: email, Credentials: model.ManualCredentials{Password: password}}
}

func oauth(source model.Provider, email, token string) model.Identity {
	return model.Identity{
		Name:        "Octo Cat",
		Email:       email,
		Avatar:      "https://avatars.example.com/octo.png",
		Credentials: model.OAuthCredentials{Source: source, AccessToken: token},
	}
}

func assertKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("error = %v, want kind %v", err, kind)
	}
}

// =========================================================================
// MANUAL LOGIN TESTS
// =========================================================================

func TestLogin_ManualSignUpThenSignIn(t *testing.T) {
	repo := newFakeUserRepo()
	svc, ts := newTestAuthService(t, repo)
	ctx := context.Background()

	first, err := svc.Login(ctx, manual("Ada", "ada@x.io", "pw1"))
	if err != nil {
		t.Fatalf("sign-up error = %v", err)
	}
	if first.User.Provider != model.ProviderManual {
		t.Errorf("Provider = %q, want manual", first.User.Provider)
	}
	if first.User.Avatar != model.DefaultAvatar {
		t.Errorf("Avatar = %q, want default", first.User.Avatar)
	}
	if first.User.PasswordHash != "" {
		t.Error("Login must not return the password hash")
	}

	stored := repo.stored(t, "ada@x.io")
	if stored.PasswordHash == "" || stored.PasswordHash == "pw1" {
		t.Errorf("stored hash = %q, want a bcrypt hash", stored.PasswordHash)
	}

	second, err := svc.Login(ctx, manual("Ada", "ada@x.io", "pw1"))
	if err != nil {
		t.Fatalf("sign-in error = %v", err)
	}
	if second.User.ID != first.User.ID {
		t.Errorf("second login resolved %q, want %q", second.User.ID, first.User.ID)
	}
	if repo.count() != 1 {
		t.Errorf("stored users = %d, want 1", repo.count())
	}

	claims, err := ts.Validate(second.Token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.UserID() != first.User.ID {
		t.Errorf("token subject = %q, want %q", claims.UserID(), first.User.ID)
	}
}

func TestLogin_ManualWrongPassword(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)
	ctx := context.Background()

	if _, err := svc.Login(ctx, manual("Ada", "ada@x.io", "pw1")); err != nil {
		t.Fatalf("setup: %v", err)
	}
	before := repo.stored(t, "ada@x.io")

	_, err := svc.Login(ctx, manual("Ada", "ada@x.io", "wrong"))
	assertKind(t, err, apperror.ErrAuthentication)
	if err.Error() != "Invalid credentials" {
		t.Errorf("message = %q, want %q", err.Error(), "Invalid credentials")
	}

	after := repo.stored(t, "ada@x.io")
	if after.PasswordHash != before.PasswordHash {
		t.Error("failed login must not change the stored hash")
	}
}

func TestLogin_ManualNewEmailWithoutPassword(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)

	_, err := svc.Login(context.Background(), manual("Ada", "ada@x.io", ""))
	assertKind(t, err, apperror.ErrValidation)
	if err.Error() != "password required" {
		t.Errorf("message = %q, want %q", err.Error(), "password required")
	}
	if repo.count() != 0 {
		t.Errorf("stored users = %d, want 0", repo.count())
	}
}

func TestLogin_ManualAgainstProviderAccount(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)
	ctx := context.Background()

	if _, err := svc.Login(ctx, oauth(model.ProviderGoogle, "ada@x.io", "")); err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, err := svc.Login(ctx, manual("Ada", "ada@x.io", "anything"))
	assertKind(t, err, apperror.ErrAuthentication)
}

func TestLogin_EmailIsNormalized(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)
	ctx := context.Background()

	first, err := svc.Login(ctx, manual("Ada", "  Ada@X.io ", "pw1"))
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if first.User.Email != "ada@x.io" {
		t.Errorf("Email = %q, want %q", first.User.Email, "ada@x.io")
	}

	second, err := svc.Login(ctx, manual("Ada", "ada@x.io", "pw1"))
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if second.User.ID != first.User.ID {
		t.Error("differently cased emails should resolve to the same user")
	}
}

func TestLogin_Validation(t *testing.T) {
	tests := []struct {
		name  string
		id    model.Identity
		field string
	}{
		{"missing email", manual("Ada", "  ", "pw1"), "email"},
		{"missing credentials", model.Identity{Email: "ada@x.io"}, "provider"},
		{"manual source in oauth credentials", oauth(model.ProviderManual, "ada@x.io", ""), "provider"},
		{"bad phone", model.Identity{Email: "ada@x.io", PhoneNumber: "12", Credentials: model.ManualCredentials{Password: "pw"}}, "phoneNumber"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeUserRepo()
			svc, _ := newTestAuthService(t, repo)

			_, err := svc.Login(context.Background(), tt.id)
			assertKind(t, err, apperror.ErrValidation)

			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || appErr.Field != tt.field {
				t.Errorf("error = %#v, want field %q", err, tt.field)
			}
			if repo.count() != 0 {
				t.Errorf("stored users = %d, want 0", repo.count())
			}
		})
	}
}

func TestLogin_PhoneStoredAsE164(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)

	id := manual("Ada", "ada@x.io", "pw1")
	id.PhoneNumber = "(650) 253-0000"
	result, err := svc.Login(context.Background(), id)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.User.PhoneNumber != "+16502530000" {
		t.Errorf("PhoneNumber = %q, want %q", result.User.PhoneNumber, "+16502530000")
	}
}

func TestLogin_PasswordTooLong(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)

	_, err := svc.Login(context.Background(), manual("Ada", "ada@x.io", strings.Repeat("p", 73)))
	assertKind(t, err, apperror.ErrValidation)
}

// =========================================================================
// PROVIDER LOGIN TESTS
// =========================================================================

func TestLogin_ProviderCreatesOnce(t *testing.T) {
	for _, p := range []model.Provider{model.ProviderGoogle, model.ProviderGitHub} {
		t.Run(string(p), func(t *testing.T) {
			repo := newFakeUserRepo()
			svc, _ := newTestAuthService(t, repo)
			ctx := context.Background()

			first, err := svc.Login(ctx, oauth(p, "octo@x.io", ""))
			if err != nil {
				t.Fatalf("first login error = %v", err)
			}
			if first.User.Provider != p {
				t.Errorf("Provider = %q, want %q", first.User.Provider, p)
			}
			if first.User.Avatar != "https://avatars.example.com/octo.png" {
				t.Errorf("Avatar = %q", first.User.Avatar)
			}

			second, err := svc.Login(ctx, oauth(p, "octo@x.io", ""))
			if err != nil {
				t.Fatalf("second login error = %v", err)
			}
			if second.User.ID != first.User.ID {
				t.Error("repeat provider login should resolve the same user")
			}
			if repo.creates != 1 {
				t.Errorf("creates = %d, want 1", repo.creates)
			}
		})
	}
}

func TestLogin_GitHubTokenLastWriteWins(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)
	ctx := context.Background()

	if _, err := svc.Login(ctx, oauth(model.ProviderGitHub, "octo@x.io", "t1")); err != nil {
		t.Fatalf("first login: %v", err)
	}
	if got := repo.stored(t, "octo@x.io").GitHubToken; got != "t1" {
		t.Fatalf("token after first login = %q, want t1", got)
	}

	result, err := svc.Login(ctx, oauth(model.ProviderGitHub, "octo@x.io", "t2"))
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if got := repo.stored(t, "octo@x.io").GitHubToken; got != "t2" {
		t.Errorf("token after second login = %q, want t2", got)
	}
	if result.User.GitHubToken != "" {
		t.Error("Login must not return the GitHub token")
	}
	if repo.tokenUpdates != 1 {
		t.Errorf("token updates = %d, want 1", repo.tokenUpdates)
	}
}

func TestLogin_ProviderWithoutTokenKeepsStoredToken(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)
	ctx := context.Background()

	if _, err := svc.Login(ctx, oauth(model.ProviderGitHub, "octo@x.io", "t1")); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := svc.Login(ctx, oauth(model.ProviderGoogle, "octo@x.io", "")); err != nil {
		t.Fatalf("google login: %v", err)
	}

	stored := repo.stored(t, "octo@x.io")
	if stored.GitHubToken != "t1" {
		t.Errorf("token = %q, want t1", stored.GitHubToken)
	}
	if stored.Provider != model.ProviderGitHub {
		t.Errorf("Provider = %q, want the creating provider", stored.Provider)
	}
	if repo.tokenUpdates != 0 {
		t.Errorf("token updates = %d, want 0", repo.tokenUpdates)
	}
}

func TestLogin_ProviderResolvesManualAccount(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)
	ctx := context.Background()

	m, err := svc.Login(ctx, manual("Ada", "ada@x.io", "pw1"))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	g, err := svc.Login(ctx, oauth(model.ProviderGoogle, "ada@x.io", ""))
	if err != nil {
		t.Fatalf("google login: %v", err)
	}
	if g.User.ID != m.User.ID {
		t.Error("same email should resolve to the same user across providers")
	}
	if g.User.Name != "Ada" {
		t.Errorf("Name = %q, profile must not be refreshed by later logins", g.User.Name)
	}
}

func TestLogin_RepositoryError(t *testing.T) {
	repo := newFakeUserRepo()
	repo.getErr = errors.New("database is on fire")
	svc, _ := newTestAuthService(t, repo)

	_, err := svc.Login(context.Background(), oauth(model.ProviderGoogle, "octo@x.io", ""))
	if err == nil {
		t.Fatal("Login() should propagate repository errors")
	}
	if errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, should not look like not-found", err)
	}
}

func TestLogin_ConcurrentFirstLogins(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Login(context.Background(), oauth(model.ProviderGoogle, "race@x.io", ""))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && !errors.Is(err, apperror.ErrConflict) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if repo.count() != 1 {
		t.Errorf("stored users = %d, want 1", repo.count())
	}
}

// =========================================================================
// GetUserByID TESTS
// =========================================================================

func TestGetUserByID_Found(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)

	result, err := svc.Login(context.Background(), manual("Ada", "ada@x.io", "pw1"))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	user, err := svc.GetUserByID(context.Background(), result.User.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if user.Email != "ada@x.io" {
		t.Errorf("Email = %q, want %q", user.Email, "ada@x.io")
	}
	if user.PasswordHash != "" {
		t.Error("GetUserByID must not return the password hash")
	}
}

func TestGetUserByID_EmptyID(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())

	_, err := svc.GetUserByID(context.Background(), "")
	assertKind(t, err, apperror.ErrValidation)
}

func TestGetUserByID_NotFound(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())

	_, err := svc.GetUserByID(context.Background(), "non-existent-id")
	assertKind(t, err, apperror.ErrNotFound)
}
