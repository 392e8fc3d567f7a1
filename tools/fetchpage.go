package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anaskhan96/soup"
)

const (
	pageTextLimit = 2000
	pageBodyLimit = 2 << 20
)

// FetchPage downloads a web page and extracts its readable text.
type FetchPage struct {
	client *http.Client
}

// NewFetchPage creates the page fetch tool.
func NewFetchPage() *FetchPage {
	return &FetchPage{client: &http.Client{Timeout: 20 * time.Second}}
}

func (f *FetchPage) Name() string { return "fetch_page" }

func (f *FetchPage) Description() string {
	return "Fetches a web page by URL and returns its text content. " +
		"Use this to read a page found via web_search."
}

func (f *FetchPage) InputSchema() map[string]interface{} {
	return ObjectSchema(map[string]interface{}{
		"url": StringProperty("The http or https URL of the page to fetch"),
	}, "url")
}

func (f *FetchPage) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}

	target, err := url.Parse(strings.TrimSpace(args.URL))
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		return "", fmt.Errorf("invalid URL %q", args.URL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build page request: %w", err)
	}
	req.Header.Set("User-Agent", "mindloop/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch page: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, pageBodyLimit))
	if err != nil {
		return "", fmt.Errorf("read page body: %w", err)
	}

	text := extractText(string(body))
	if text == "" {
		return "", fmt.Errorf("no readable text on page")
	}
	return fmt.Sprintf("Content from %s:\n%s", target.String(), text), nil
}

// extractText pulls visible text from the page body, collapsing whitespace
// and capping the output so tool results stay prompt-sized.
func extractText(html string) string {
	doc := soup.HTMLParse(html)
	raw := doc.FullText()

	fields := strings.Fields(raw)
	text := strings.Join(fields, " ")

	runes := []rune(text)
	if len(runes) > pageTextLimit {
		text = string(runes[:pageTextLimit]) + "..."
	}
	return text
}
