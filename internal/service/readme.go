package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/readme-studio/internal/apperror"
)

// MaxPromptLength bounds a README prompt, in characters.
const MaxPromptLength = 8000

// Generator turns a prompt into text. *readme.Gemini satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ReadmeService drafts README content for signed-in users.
type ReadmeService struct {
	gen    Generator
	logger *slog.Logger
}

// NewReadmeService creates a ReadmeService.
func NewReadmeService(gen Generator, logger *slog.Logger) *ReadmeService {
	return &ReadmeService{gen: gen, logger: logger}
}

// Draft validates prompt and forwards it to the generator.
func (s *ReadmeService) Draft(ctx context.Context, userID, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", apperror.ValidationFailed("prompt", "prompt required")
	}
	if utf8.RuneCountInString(prompt) > MaxPromptLength {
		return "", apperror.ValidationFailed("prompt", fmt.Sprintf("prompt exceeds %d characters", MaxPromptLength))
	}

	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("service/readme: generating for user %s: %w", userID, err)
	}
	s.logger.Info("readme drafted",
		slog.String("userID", userID),
		slog.Int("promptChars", utf8.RuneCountInString(prompt)),
		slog.Int("outputChars", utf8.RuneCountInString(text)),
	)
	return text, nil
}
