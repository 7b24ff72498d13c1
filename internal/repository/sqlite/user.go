package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/readme-studio/internal/apperror"
	"github.com/sakif/readme-studio/internal/model"
	"github.com/sakif/readme-studio/internal/repository"
)

// compile-time check that *DB implements repository.Store
var _ repository.Store = (*DB)(nil)

// publicColumns is the default projection. Secrets are only selected when a
// caller passes repository.WithSecrets().
var publicColumns = []string{
	"id", "name", "email", "phone_number", "avatar", "provider", "created_at", "updated_at",
}

var secretColumns = []string{"password_hash", "github_token"}

// Create inserts a new user. The ID is an xid: sortable by creation time and
// URL-safe. A duplicate email is reported as apperror.ErrConflict.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, email, phone_number, avatar, password_hash, provider, github_token, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Name,
		user.Email,
		user.PhoneNumber,
		user.Avatar,
		user.PasswordHash,
		string(user.Provider),
		user.GitHubToken,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("email", user.Email)
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}

	return nil
}

// GetByEmail retrieves a user by email.
// Returns apperror.ErrNotFound if no user has that email.
func (db *DB) GetByEmail(ctx context.Context, email string, opts ...repository.ReadOption) (*model.User, error) {
	return db.getOne(ctx, "email", email, repository.ApplyReadOptions(opts))
}

// GetByID retrieves a user by internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetByID(ctx context.Context, id string, opts ...repository.ReadOption) (*model.User, error) {
	return db.getOne(ctx, "id", id, repository.ApplyReadOptions(opts))
}

// UpdateGitHubToken overwrites the stored GitHub token.
func (db *DB) UpdateGitHubToken(ctx context.Context, id, token string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET github_token = ?, updated_at = ? WHERE id = ?`,
		token, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating github token for user %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

// getOne runs a single-row lookup. key is one of the two fixed column names
// above, never user input.
func (db *DB) getOne(ctx context.Context, key, value string, o repository.ReadOptions) (*model.User, error) {
	columns := publicColumns
	if o.IncludeSecrets {
		columns = append(append([]string{}, publicColumns...), secretColumns...)
	}

	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s = ?`, strings.Join(columns, ", "), key)

	var (
		u        model.User
		provider string
	)
	dest := []any{&u.ID, &u.Name, &u.Email, &u.PhoneNumber, &u.Avatar, &provider, &u.CreatedAt, &u.UpdatedAt}
	if o.IncludeSecrets {
		dest = append(dest, &u.PasswordHash, &u.GitHubToken)
	}

	err := db.conn.QueryRowContext(ctx, query, value).Scan(dest...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", key, err)
	}
	u.Provider = model.Provider(provider)

	return &u, nil
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
