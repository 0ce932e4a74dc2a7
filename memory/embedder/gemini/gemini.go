// Package gemini implements the Embedder interface on the Gemini
// embedding API.
package gemini

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// Config holds Gemini embedder settings.
type Config struct {
	// APIKey authenticates against the Gemini API.
	APIKey string

	// Model is the embedding model name. Default: "text-embedding-004".
	Model string

	// Dimensions is the expected vector size. Default: 768, the native
	// dimensionality of text-embedding-004.
	Dimensions int
}

func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = "text-embedding-004"
	}
	if c.Dimensions == 0 {
		c.Dimensions = 768
	}
}

// Embedder converts text to vectors via the Gemini embedding API.
type Embedder struct {
	client *genai.Client
	model  string
	dims   int
}

// New creates a Gemini-backed embedder.
func New(ctx context.Context, cfg Config) (*Embedder, error) {
	cfg.defaults()
	if cfg.APIKey == "" {
		return nil, goerr.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "create genai client")
	}

	return &Embedder{
		client: client,
		model:  cfg.Model,
		dims:   cfg.Dimensions,
	}, nil
}

// Embed converts a single text to an embedding vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), &genai.EmbedContentConfig{})
	if err != nil {
		return nil, goerr.Wrap(err, "embed content", goerr.V("model", e.model))
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, goerr.New("empty embedding response", goerr.V("model", e.model))
	}
	return resp.Embeddings[0].Values, nil
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.dims
}
