package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	webSearchEndpoint     = "https://www.googleapis.com/customsearch/v1"
	webSearchDefaultCount = 5
	webSearchMaxCount     = 10
)

// WebSearch queries the Google Custom Search JSON API. When no API key or
// engine ID is configured, the tool stays registered and tells the model so,
// rather than failing the turn.
type WebSearch struct {
	apiKey   string
	engineID string
	endpoint string
	client   *http.Client
	log      *zap.Logger
}

// NewWebSearch creates the web search tool. Empty credentials are allowed;
// the tool then reports itself unconfigured at call time.
func NewWebSearch(apiKey, engineID string, log *zap.Logger) *WebSearch {
	return &WebSearch{
		apiKey:   apiKey,
		engineID: engineID,
		endpoint: webSearchEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		log:      log,
	}
}

func (w *WebSearch) Name() string { return "web_search" }

func (w *WebSearch) Description() string {
	return "Searches the web and returns titles, links, and snippets for the top results. " +
		"Use this for current events or facts not in the conversation."
}

func (w *WebSearch) InputSchema() map[string]interface{} {
	return ObjectSchema(map[string]interface{}{
		"query": StringProperty("The search query"),
		"count": IntegerProperty("How many results to return, 1-10 (default 5)"),
	}, "query")
}

type searchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

func (w *WebSearch) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var args struct {
		Query string `json:"query"`
		Count int    `json:"count"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", fmt.Errorf("empty query")
	}
	if w.apiKey == "" || w.engineID == "" {
		return "Web search is not configured.", nil
	}

	count := args.Count
	if count <= 0 {
		count = webSearchDefaultCount
	}
	if count > webSearchMaxCount {
		count = webSearchMaxCount
	}

	q := url.Values{}
	q.Set("key", w.apiKey)
	q.Set("cx", w.engineID)
	q.Set("q", args.Query)
	q.Set("num", fmt.Sprintf("%d", count))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build search request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("web search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("web search: status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode search response: %w", err)
	}
	if len(parsed.Items) == 0 {
		return "No results found.", nil
	}

	var b strings.Builder
	for i, item := range parsed.Items {
		fmt.Fprintf(&b, "[%d] %s\n%s\n%s\n\n", i+1, item.Title, item.Link, item.Snippet)
	}
	w.log.Debug("web search served", zap.Int("results", len(parsed.Items)))
	return strings.TrimRight(b.String(), "\n"), nil
}
