// Package anthropic implements the Generator interface on the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/goerr/v2"
)

// Config holds Anthropic generation settings.
type Config struct {
	// APIKey authenticates against the Anthropic API.
	APIKey string

	// Model is the Claude model name. Default: "claude-sonnet-4-20250514".
	Model string

	// MaxTokens caps the response length. Default: 1024.
	MaxTokens int64
}

// Generator produces replies via the Anthropic Messages API.
type Generator struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// New creates a Claude-backed generator.
func New(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, goerr.New("anthropic api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Generator{
		client:    &client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Generate produces text for the prompt.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", goerr.Wrap(err, "claude API error", goerr.V("model", g.model))
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", goerr.New("empty response from claude", goerr.V("model", g.model))
	}
	return sb.String(), nil
}
