package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"
)

// Candidate is one fact the extraction model proposes to remember.
// IsNew=false marks information already present in the supplied fact list;
// such candidates are never written.
type Candidate struct {
	Text  string `json:"text"`
	IsNew bool   `json:"is_new"`
}

// Decision is the extraction outcome for one user message.
type Decision struct {
	ShouldPersist bool        `json:"should_write"`
	Facts         []Candidate `json:"memories"`
}

// NewFacts returns the candidate texts that are actually writable.
func (d *Decision) NewFacts() []string {
	if d == nil || !d.ShouldPersist {
		return nil
	}
	var texts []string
	for _, c := range d.Facts {
		if c.IsNew && strings.TrimSpace(c.Text) != "" {
			texts = append(texts, c.Text)
		}
	}
	return texts
}

// completeFunc performs one structured extraction call and returns the raw
// decision JSON. Swappable so tests run without a live backend.
type completeFunc func(ctx context.Context, system, latest string) (json.RawMessage, error)

// Extractor decides which durable facts in the latest user message should be
// persisted, given everything already known about the user. Deduplication is
// semantic: the model sees the stored facts and marks repeats is_new=false.
type Extractor struct {
	model    string
	log      *zap.Logger
	complete completeFunc
}

// NewExtractor builds an extractor backed by the Anthropic API.
func NewExtractor(client *anthropic.Client, model string, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Extractor{model: model, log: log}
	e.complete = func(ctx context.Context, system, latest string) (json.RawMessage, error) {
		resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(e.model),
			MaxTokens: 1024,
			System:    []anthropic.TextBlockParam{{Text: system}},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(latest)),
			},
			Tools: []anthropic.ToolUnionParam{{
				OfTool: &anthropic.ToolParam{
					Name:        "record_memory",
					Description: anthropic.String("Record the memory extraction decision."),
					InputSchema: anthropic.ToolInputSchemaParam{
						Properties: map[string]interface{}{
							"should_write": map[string]interface{}{"type": "boolean"},
							"memories": map[string]interface{}{
								"type": "array",
								"items": map[string]interface{}{
									"type": "object",
									"properties": map[string]interface{}{
										"text":   map[string]interface{}{"type": "string"},
										"is_new": map[string]interface{}{"type": "boolean"},
									},
									"required": []string{"text", "is_new"},
								},
							},
						},
						Required: []string{"should_write", "memories"},
					},
				},
			}},
			ToolChoice: anthropic.ToolChoiceUnionParam{
				OfTool: &anthropic.ToolChoiceToolParam{Name: "record_memory"},
			},
		})
		if err != nil {
			return nil, err
		}
		for _, block := range resp.Content {
			if block.Type == "tool_use" {
				return block.Input, nil
			}
		}
		return nil, fmt.Errorf("no record_memory call in extraction response")
	}
	return e
}

// Extract runs the extraction policy for the latest user message. Any backend
// failure degrades to an empty, non-persisting decision: memory extraction is
// never allowed to abort a turn.
func (e *Extractor) Extract(ctx context.Context, existing []Fact, latest string) (*Decision, error) {
	system := fmt.Sprintf(extractionPrompt, formatFacts(existing))

	raw, err := e.complete(ctx, system, latest)
	if err != nil {
		e.log.Warn("memory extraction failed", zap.Error(err))
		return &Decision{}, nil
	}

	var decision Decision
	if err := json.Unmarshal(raw, &decision); err != nil {
		e.log.Warn("memory extraction returned malformed decision", zap.Error(err))
		return &Decision{}, nil
	}

	e.log.Debug("memory extraction decision",
		zap.Bool("should_persist", decision.ShouldPersist),
		zap.Int("candidates", len(decision.Facts)))
	return &decision, nil
}

// formatFacts renders stored facts for the extraction prompt.
func formatFacts(facts []Fact) string {
	if len(facts) == 0 {
		return emptyFacts
	}
	lines := make([]string, 0, len(facts))
	for _, f := range facts {
		lines = append(lines, "- "+f.Text)
	}
	return strings.Join(lines, "\n")
}
