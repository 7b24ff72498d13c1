package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/readme-studio/internal/apperror"
	"github.com/sakif/readme-studio/internal/auth"
	"github.com/sakif/readme-studio/internal/model"
)

// RepoService lists a user's GitHub repositories.
type RepoService interface {
	ListForUser(ctx context.Context, userID string) ([]model.Repo, error)
}

// RepoHandler serves GET /api/auth/repos.
type RepoHandler struct {
	svc    RepoService
	logger *slog.Logger
}

func NewRepoHandler(svc RepoService, logger *slog.Logger) *RepoHandler {
	return &RepoHandler{svc: svc, logger: logger}
}

// HandleList returns {success, repos} for the signed-in user. Users who
// never linked GitHub get a 400.
func (h *RepoHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthenticated())
		return
	}

	repos, err := h.svc.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if repos == nil {
		repos = []model.Repo{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"repos":   repos,
	})
}
