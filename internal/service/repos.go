package service

import (
	"context"
	"fmt"

	"github.com/sakif/readme-studio/internal/apperror"
	"github.com/sakif/readme-studio/internal/model"
	"github.com/sakif/readme-studio/internal/repository"
)

// RepoLister lists the repositories visible to a GitHub access token.
// *github.Client satisfies it.
type RepoLister interface {
	ListRepos(ctx context.Context, token string) ([]model.Repo, error)
}

// RepoService lists a signed-in user's GitHub repositories.
type RepoService struct {
	users  repository.UserRepository
	github RepoLister
}

// NewRepoService creates a RepoService.
func NewRepoService(users repository.UserRepository, github RepoLister) *RepoService {
	return &RepoService{users: users, github: github}
}

// ListForUser loads the stored GitHub token of userID and lists its
// repositories. Nothing is written, so repeated calls are idempotent.
func (s *RepoService) ListForUser(ctx context.Context, userID string) ([]model.Repo, error) {
	user, err := s.users.GetByID(ctx, userID, repository.WithSecrets())
	if err != nil {
		return nil, fmt.Errorf("service/repos: fetching user %s: %w", userID, err)
	}
	if user.GitHubToken == "" {
		return nil, apperror.ValidationFailed("githubToken", "GitHub account not linked")
	}

	repos, err := s.github.ListRepos(ctx, user.GitHubToken)
	if err != nil {
		return nil, fmt.Errorf("service/repos: listing repositories for user %s: %w", userID, err)
	}
	return repos, nil
}
