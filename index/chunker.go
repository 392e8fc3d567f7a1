package index

import "strings"

// Chunking policy: fixed-size sliding window with overlap so context that
// straddles a boundary appears intact in at least one chunk. Units are runes,
// matching how the source documents were split before embedding.
const (
	chunkSize    = 1000
	chunkOverlap = 200
)

// page is one page of a source document before chunking.
type page struct {
	number int
	text   string
}

// splitPages splits raw document text into pages on form-feed boundaries.
// Documents without form feeds are treated as a single page 1.
func splitPages(text string) []page {
	parts := strings.Split(text, "\f")
	pages := make([]page, 0, len(parts))
	n := 0
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n++
		pages = append(pages, page{number: n, text: part})
	}
	return pages
}

// splitChunks windows the text into overlapping chunks.
func splitChunks(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= chunkSize {
		return []string{string(runes)}
	}

	step := chunkSize - chunkOverlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
