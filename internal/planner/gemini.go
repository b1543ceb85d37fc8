package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dashagent/internal/logging"

	"google.golang.org/genai"
)

// ErrNoAPIKey is returned when the Gemini planner has no key.
var ErrNoAPIKey = errors.New("no Gemini API key (set GEMINI_API_KEY or llm.api_key)")

// GeminiConfig configures the Gemini planner.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Gemini plans with Google's Gemini API.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGemini creates a Gemini planner.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model, timeout: cfg.Timeout}, nil
}

// Model returns the model name.
func (g *Gemini) Model() string { return g.model }

// Plan sends the request with the command protocol as system instruction and
// returns the model's text.
func (g *Gemini) Plan(ctx context.Context, request string, pc Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	temperature := float32(0)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemPrompt(pc), genai.RoleUser),
		Temperature:       &temperature,
	}
	contents := []*genai.Content{genai.NewContentFromText(request, genai.RoleUser)}

	logging.PlannerDebug("gemini %s: %d tab(s), %d column(s) in context", g.model, len(pc.Tabs), len(pc.Columns))
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}
	return text, nil
}
