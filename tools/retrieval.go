package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mindloop/mindloop/core"
	"github.com/mindloop/mindloop/index"
)

const (
	retrievalResultCount = 4
	snippetLimit         = 400
)

const noIndexGuidance = "You haven't uploaded any documents yet. " +
	"Upload a document first, then I can search it for you."

// DocumentSearch retrieves passages from the calling user's document index.
// The user identity comes from the request context, never from tool input,
// so the model cannot query another user's documents.
type DocumentSearch struct {
	index *index.Manager
	log   *zap.Logger
}

// NewDocumentSearch creates the document search tool over idx.
func NewDocumentSearch(idx *index.Manager, log *zap.Logger) *DocumentSearch {
	return &DocumentSearch{index: idx, log: log}
}

func (d *DocumentSearch) Name() string { return "search_my_documents" }

func (d *DocumentSearch) Description() string {
	return "Searches the user's uploaded documents for passages relevant to a query. " +
		"Use this whenever the user asks about their own files or notes."
}

func (d *DocumentSearch) InputSchema() map[string]interface{} {
	return ObjectSchema(map[string]interface{}{
		"query": StringProperty("What to look for in the user's documents"),
	}, "query")
}

func (d *DocumentSearch) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", fmt.Errorf("empty query")
	}

	userID, ok := core.UserFrom(ctx)
	if !ok {
		return "", fmt.Errorf("no user identity on request")
	}

	results, err := d.index.Query(ctx, userID, args.Query, retrievalResultCount)
	if errors.Is(err, index.ErrNoIndex) {
		return noIndexGuidance, nil
	}
	if err != nil {
		return "", fmt.Errorf("document search: %w", err)
	}
	if len(results) == 0 {
		return "No relevant passages found in your documents.", nil
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s (page %d)\n%s\n\n", i+1, r.Filename, r.Page, truncateSnippet(r.Content))
	}
	if collector, ok := core.CollectorFrom(ctx); ok {
		for _, r := range results {
			collector.Add(core.Source{Filename: r.Filename, Page: r.Page, Score: r.Score})
		}
	}
	d.log.Debug("document search served",
		zap.String("user_id", userID),
		zap.Int("results", len(results)))
	return strings.TrimRight(b.String(), "\n"), nil
}

func truncateSnippet(s string) string {
	runes := []rune(s)
	if len(runes) <= snippetLimit {
		return s
	}
	return string(runes[:snippetLimit-3]) + "..."
}
