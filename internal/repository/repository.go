// Package repository declares the storage contract for user records.
//
// Three implementations live in subpackages: sqlite (default, embedded),
// postgres and mongo. All of them enforce email uniqueness with an index,
// report a duplicate insert as apperror.ErrConflict and a missing row as
// apperror.ErrNotFound.
package repository

import (
	"context"

	"github.com/sakif/readme-studio/internal/model"
)

// ReadOptions controls which normally-hidden fields a read returns.
type ReadOptions struct {
	IncludeSecrets bool
}

// ReadOption mutates ReadOptions.
type ReadOption func(*ReadOptions)

// WithSecrets makes a read return PasswordHash and GitHubToken. Default reads
// leave both empty.
func WithSecrets() ReadOption {
	return func(o *ReadOptions) { o.IncludeSecrets = true }
}

// ApplyReadOptions folds opts into a ReadOptions value.
func ApplyReadOptions(opts []ReadOption) ReadOptions {
	var o ReadOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type UserRepository interface {
	// Create inserts a new user, filling ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string, opts ...ReadOption) (*model.User, error)
	GetByID(ctx context.Context, id string, opts ...ReadOption) (*model.User, error)
	// UpdateGitHubToken overwrites the stored provider token (last write wins).
	UpdateGitHubToken(ctx context.Context, id, token string) error
}

// Store is a UserRepository that owns a connection and can be health-checked.
type Store interface {
	UserRepository
	Ping(ctx context.Context) error
	Close() error
}
