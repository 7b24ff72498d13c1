// Package readme drafts README text with the Gemini API.
package readme

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/sakif/readme-studio/internal/apperror"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-1.5-flash"

// Config configures the Gemini client.
type Config struct {
	APIKey string
	Model  string
	// Endpoint overrides the API base URL; tests point it at httptest.
	Endpoint string
	Timeout  time.Duration
}

// Gemini generates text with one generateContent call per prompt.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGemini creates a Gemini API client authenticated with an API key.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("readme: gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.Endpoint},
	})
	if err != nil {
		return nil, fmt.Errorf("readme: creating gemini client: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model, timeout: cfg.Timeout}, nil
}

// Generate sends prompt as a single user turn and returns the text of the
// first candidate. Provider failures come back as apperror.ErrUpstream.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", apperror.Upstream("gemini", fmt.Errorf("status %d: %s", apiErr.Code, apiErr.Message))
		}
		return "", apperror.Upstream("gemini", err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", apperror.Upstream("gemini", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason))
	}
	text := resp.Text()
	if text == "" {
		return "", apperror.Upstream("gemini", errors.New("empty response"))
	}
	return text, nil
}
