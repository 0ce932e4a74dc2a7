// Package agent implements the conversation turn handler: retrieve
// memory context, generate a reply, consolidate the exchange back into
// memory.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/evermind-ai/evermind/core"
	"github.com/evermind-ai/evermind/memory"
)

// Generator produces a reply from a prompt.
// Implementations: gemini.Generator, anthropic.Generator.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Memory is the slice of the memory manager the handler needs.
// *memory.Manager satisfies it.
type Memory interface {
	Search(ctx context.Context, ownerID, query string) ([]memory.SearchResult, error)
	Add(ctx context.Context, ownerID string, turns []core.Turn) (*memory.Mutations, error)
}

// Config holds handler settings.
type Config struct {
	// SystemPrompt is the persona preamble. A default is used if empty.
	SystemPrompt string
}

// DefaultSystemPrompt is the stock assistant persona.
const DefaultSystemPrompt = "You are a helpful AI assistant. " +
	"Use what you know about the user to personalize your answer, and never " +
	"mention the memory system itself."

// Handler runs one conversation turn: search memory, build the prompt,
// generate, then commit the exchange.
type Handler struct {
	mem    Memory
	gen    Generator
	config Config
	logger *slog.Logger
}

// Option configures the handler.
type Option func(*Handler)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates a conversation turn handler.
func NewHandler(mem Memory, gen Generator, config Config, opts ...Option) *Handler {
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt
	}
	h := &Handler{
		mem:    mem,
		gen:    gen,
		config: config,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// degradedReply is returned in place of a generated answer when the
// generation provider is unreachable. The turn still completes.
const degradedReply = "I'm having trouble reaching my language model right now. Please try again in a moment."

// Handle runs a single turn for the owner and returns the assistant's
// reply.
//
// Memory is best-effort on both sides of generation: a retrieval outage
// means the prompt carries no context, and a consolidation failure
// never withholds the reply from the caller.
func (h *Handler) Handle(ctx context.Context, ownerID, userText string) (string, error) {
	if ownerID == "" {
		return "", goerr.New("owner id is required")
	}
	if strings.TrimSpace(userText) == "" {
		return "", goerr.New("empty user message")
	}

	results, err := h.mem.Search(ctx, ownerID, userText)
	if err != nil {
		h.logger.Warn("memory retrieval failed, proceeding without context",
			"owner", ownerID, "error", err)
		results = nil
	}

	reply, err := h.gen.Generate(ctx, h.buildPrompt(results, userText))
	if err != nil {
		h.logger.Error("generation failed", "owner", ownerID, "error", err)
		return degradedReply, nil
	}

	mut, err := h.mem.Add(ctx, ownerID, []core.Turn{
		core.UserTurn(userText),
		core.AssistantTurn(reply),
	})
	if err != nil {
		h.logger.Warn("memory consolidation failed, reply unaffected",
			"owner", ownerID, "error", err)
	} else {
		h.logger.Debug("turn committed", "owner", ownerID, "mutations", mut)
	}

	return reply, nil
}

// buildPrompt assembles the generation prompt from the persona, the
// retrieved facts, and the user's question.
func (h *Handler) buildPrompt(results []memory.SearchResult, userText string) string {
	var sb strings.Builder
	sb.WriteString(h.config.SystemPrompt)
	sb.WriteString("\n\nWhat you know about the user:\n")
	if len(results) == 0 {
		sb.WriteString("(nothing yet)\n")
	} else {
		for _, r := range results {
			fmt.Fprintf(&sb, "- %s\n", r.Text)
		}
	}
	sb.WriteString("\nUser question:\n")
	sb.WriteString(userText)
	return sb.String()
}
