package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/readme-studio/internal/apperror"
	"github.com/sakif/readme-studio/internal/auth"
)

// ReadmeService drafts README text from a prompt.
type ReadmeService interface {
	Draft(ctx context.Context, userID, prompt string) (string, error)
}

type ReadmeHandler struct {
	svc    ReadmeService
	logger *slog.Logger
}

func NewReadmeHandler(svc ReadmeService, logger *slog.Logger) *ReadmeHandler {
	return &ReadmeHandler{svc: svc, logger: logger}
}

type draftRequest struct {
	Prompt string `json:"prompt"`
}

// HandleDraft handles POST /api/readme: {prompt} → {success, readme}.
func (h *ReadmeHandler) HandleDraft(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthenticated())
		return
	}

	var req draftRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	text, err := h.svc.Draft(r.Context(), userID, req.Prompt)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"readme":  text,
	})
}
