package memory

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/evermind-ai/evermind/core"
)

// LLMExtractor distills conversation turns into durable facts by
// prompting a generation model for a strict JSON response.
//
// The prompt asks for canonical subject-first statements ("user is
// vegetarian", "user eats chicken") so that a later restatement of the
// same fact embeds close to the original and merges instead of
// accumulating near-identical records.
type LLMExtractor struct {
	gen Generator
}

// NewLLMExtractor creates an extractor backed by the given generator.
func NewLLMExtractor(gen Generator) *LLMExtractor {
	return &LLMExtractor{gen: gen}
}

const extractionPrompt = `You distill durable facts about the user from a conversation exchange.

Rules:
- Keep only information worth remembering across sessions: preferences, relationships, biography, plans, constraints.
- Ignore small talk, questions, and anything only relevant to this exchange.
- Write each fact as one short present-tense statement starting with "user", e.g. "user is vegetarian", "user eats chicken".
- If a fact replaces an earlier truth, state only the new truth.
- For each fact, include the relationship triples it implies, with "user" as subject where applicable.
- Respond with JSON only, no prose and no code fences, in exactly this shape:
  {"facts":[{"statement":"...","confidence":0.9,"triples":[{"subject":"user","predicate":"...","object":"..."}]}]}
- If nothing is worth remembering, respond with {"facts":[]}.

Conversation:
`

func (e *LLMExtractor) Extract(ctx context.Context, turns []core.Turn) ([]Fact, error) {
	if len(turns) == 0 {
		return nil, nil
	}

	out, err := e.gen.Generate(ctx, extractionPrompt+transcript(turns))
	if err != nil {
		return nil, goerr.Wrap(err, "generate fact extraction")
	}

	return parseFacts(out)
}

// transcript renders turns as "role: content" lines for the prompt.
func transcript(turns []core.Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString(string(t.Role))
		sb.WriteString(": ")
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

// parseFacts decodes the extractor response. Models occasionally wrap
// JSON in code fences or prose despite instructions, so the first
// balanced JSON object in the output is taken.
func parseFacts(out string) ([]Fact, error) {
	raw := jsonObject(out)
	if raw == "" {
		return nil, goerr.New("no JSON object in extractor response", goerr.V("response", truncate(out, 200)))
	}

	var payload struct {
		Facts []struct {
			Statement  string   `json:"statement"`
			Confidence float64  `json:"confidence"`
			Triples    []Triple `json:"triples"`
		} `json:"facts"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, goerr.Wrap(err, "decode extractor response", goerr.V("response", truncate(raw, 200)))
	}

	facts := make([]Fact, 0, len(payload.Facts))
	for _, f := range payload.Facts {
		statement := strings.TrimSpace(f.Statement)
		if statement == "" {
			continue
		}
		facts = append(facts, Fact{
			Statement:  statement,
			Confidence: f.Confidence,
			Triples:    f.Triples,
		})
	}
	return facts, nil
}

// jsonObject returns the substring from the first '{' to the last '}'.
func jsonObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
