// Package model defines the data structures used throughout the application.
package model

import (
	"fmt"
	"time"
)

// DefaultAvatar is stored when a login does not carry a profile picture.
const DefaultAvatar = "https://example.com/default-avatar.png"

// Provider tags the identity source a user record was created through.
type Provider string

const (
	ProviderManual Provider = "manual"
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
)

// ParseProvider accepts the three known tags and nothing else.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(s); p {
	case ProviderManual, ProviderGoogle, ProviderGitHub:
		return p, nil
	}
	return "", fmt.Errorf("model: unknown provider %q", s)
}

// User is the only persisted entity.
//
// Email is the lookup key for every login path, so it is unique across all
// providers: a manual account and a Google account sharing an email are the
// same row.
//
// PasswordHash and GitHubToken are never serialized. GitHubToken is also
// left empty by default store reads; ask for it with repository.WithSecrets().
type User struct {
	ID           string    `json:"id"                    bson:"_id"`
	Name         string    `json:"name"                  bson:"name"`
	Email        string    `json:"email"                 bson:"email"`
	PhoneNumber  string    `json:"phoneNumber,omitempty" bson:"phoneNumber,omitempty"`
	Avatar       string    `json:"avatar"                bson:"avatar"`
	PasswordHash string    `json:"-"                     bson:"password,omitempty"`
	Provider     Provider  `json:"provider"              bson:"provider"`
	GitHubToken  string    `json:"-"                     bson:"githubToken,omitempty"`
	CreatedAt    time.Time `json:"createdAt"             bson:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"             bson:"updatedAt"`
}
