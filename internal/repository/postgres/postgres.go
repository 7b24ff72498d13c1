// Package postgres implements repository.Store on PostgreSQL via pgxpool.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/xid"

	"github.com/sakif/readme-studio/internal/apperror"
	"github.com/sakif/readme-studio/internal/model"
	"github.com/sakif/readme-studio/internal/repository"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

// Repository implements repository.Store on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

var _ repository.Store = (*Repository)(nil)

// New connects to databaseURL, verifies the connection and applies pending
// migrations.
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	if err := Migrate(databaseURL, func(m *migrate.Migrate) error { return m.Up() }); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}
	return &Repository{pool: pool}, nil
}

// Migrate runs fn against a golang-migrate instance built from the embedded
// migration files. migrate.ErrNoChange is not an error.
func Migrate(databaseURL string, fn func(*migrate.Migrate) error) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: loading embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("postgres: creating migrator: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("postgres: running migrations: %w", err)
	}
	return nil
}

// migrateURL rewrites a libpq-style URL to the scheme the pgx/v5 migrate
// driver registers.
func migrateURL(databaseURL string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// Create inserts a user.
func (r *Repository) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `INSERT INTO users
		(id, name, email, phone_number, avatar, password_hash, provider, github_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, query,
		user.ID, user.Name, user.Email, user.PhoneNumber, user.Avatar,
		user.PasswordHash, string(user.Provider), user.GitHubToken,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperror.Conflict("email", user.Email)
		}
		return fmt.Errorf("postgres: inserting user %s: %w", user.Email, err)
	}
	return nil
}

// GetByEmail fetches a user by email.
func (r *Repository) GetByEmail(ctx context.Context, email string, opts ...repository.ReadOption) (*model.User, error) {
	return r.getOne(ctx, "email", email, repository.ApplyReadOptions(opts))
}

// GetByID fetches a user by ID.
func (r *Repository) GetByID(ctx context.Context, id string, opts ...repository.ReadOption) (*model.User, error) {
	return r.getOne(ctx, "id", id, repository.ApplyReadOptions(opts))
}

// UpdateGitHubToken overwrites the stored GitHub token.
func (r *Repository) UpdateGitHubToken(ctx context.Context, id, token string) error {
	const query = `UPDATE users SET github_token = $1, updated_at = $2 WHERE id = $3`
	tag, err := r.pool.Exec(ctx, query, token, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("postgres: updating github token for user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

func (r *Repository) getOne(ctx context.Context, key, value string, o repository.ReadOptions) (*model.User, error) {
	// Secret columns are always selected positionally but blanked unless
	// requested, which keeps a single Scan call.
	secrets := `'', ''`
	if o.IncludeSecrets {
		secrets = `password_hash, github_token`
	}
	query := fmt.Sprintf(`SELECT id, name, email, phone_number, avatar, provider, created_at, updated_at, %s
		FROM users WHERE %s = $1`, secrets, key)

	var (
		u        model.User
		provider string
	)
	err := r.pool.QueryRow(ctx, query, value).Scan(
		&u.ID, &u.Name, &u.Email, &u.PhoneNumber, &u.Avatar, &provider,
		&u.CreatedAt, &u.UpdatedAt, &u.PasswordHash, &u.GitHubToken,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("postgres: getting user by %s: %w", key, err)
	}
	u.Provider = model.Provider(provider)
	return &u, nil
}
