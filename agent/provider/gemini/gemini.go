// Package gemini implements the Generator interface on the Gemini API.
package gemini

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// Config holds Gemini generation settings.
type Config struct {
	// APIKey authenticates against the Gemini API.
	APIKey string

	// Model is the generative model name. Default: "gemini-2.5-flash".
	Model string
}

// Generator produces replies via the Gemini API.
type Generator struct {
	client *genai.Client
	model  string
}

// New creates a Gemini-backed generator.
func New(ctx context.Context, cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, goerr.New("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "create genai client")
	}
	return &Generator{client: client, model: cfg.Model}, nil
}

// Generate produces text for the prompt.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", goerr.Wrap(err, "generate content", goerr.V("model", g.model))
	}

	if len(resp.Candidates) == 0 ||
		resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 ||
		resp.Candidates[0].Content.Parts[0].Text == "" {
		return "", goerr.New("empty response from gemini", goerr.V("model", g.model))
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}
