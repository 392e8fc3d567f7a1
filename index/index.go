// Package index is the per-user document index: uploaded text split into
// overlapping chunks, embedded, and stored one vector collection per user.
// Exactly one physical collection exists per user and nothing is ever shared
// across users.
package index

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/mindloop/mindloop/index/embed"
)

// ErrNoIndex reports that the user has never ingested a document. It is part
// of the contract, not a failure: callers turn it into upload guidance.
var ErrNoIndex = errors.New("no document index for user")

// Result is one retrieved chunk with its similarity score.
type Result struct {
	Content  string
	Filename string
	Page     int
	DocID    string
	Score    float64
}

// Manager owns the vector store and embedding plumbing for all users.
type Manager struct {
	db       *chromem.DB
	embedder embed.Embedder
	cache    *ristretto.Cache
	log      *zap.Logger

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// NewManager creates the index manager. A non-empty path makes the store
// persistent on disk; empty keeps everything in memory.
func NewManager(path string, embedder embed.Embedder, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open vector store: %w", err)
		}
	}

	// Query embeddings are cached: repeated questions against a user's
	// documents skip the embedding round-trip.
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     32 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	m := &Manager{
		db:          db,
		embedder:    embedder,
		cache:       cache,
		log:         log,
		collections: make(map[string]*chromem.Collection),
	}
	// Pick up collections restored from disk.
	for name, col := range db.ListCollections() {
		m.collections[name] = col
	}
	return m, nil
}

func collectionName(userID string) string {
	return "user_" + userID
}

// collection returns the user's collection, or nil when the user has none.
func (m *Manager) collection(userID string) *chromem.Collection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collections[collectionName(userID)]
}

// ensureCollection returns the user's collection, creating it if absent.
func (m *Manager) ensureCollection(userID string) (*chromem.Collection, error) {
	name := collectionName(userID)

	m.mu.RLock()
	col, ok := m.collections[name]
	m.mu.RUnlock()
	if ok {
		return col, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if col, ok := m.collections[name]; ok {
		return col, nil
	}
	col, err := m.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	m.collections[name] = col
	return col, nil
}

// HasIndex reports whether the user has ingested any document.
func (m *Manager) HasIndex(userID string) bool {
	return m.collection(userID) != nil
}

// Ingest splits the document into chunks, embeds each, and merges them into
// the user's index, creating it on first use. Re-ingesting identical content
// produces additional duplicate chunks; duplicate prevention belongs to the
// caller. Returns the number of chunks stored.
func (m *Manager) Ingest(ctx context.Context, userID, docID, filename string, data []byte) (int, error) {
	pages := splitPages(string(data))
	if len(pages) == 0 {
		return 0, fmt.Errorf("document %s has no content", docID)
	}

	col, err := m.ensureCollection(userID)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, pg := range pages {
		for _, chunk := range splitChunks(pg.text) {
			vec, err := m.embedder.Embed(ctx, chunk)
			if err != nil {
				return stored, fmt.Errorf("embed chunk: %w", err)
			}
			doc := chromem.Document{
				ID:        uuid.New().String(),
				Content:   chunk,
				Embedding: vec,
				Metadata: map[string]string{
					"user_id":  userID,
					"doc_id":   docID,
					"filename": filename,
					"page":     strconv.Itoa(pg.number),
				},
			}
			if err := col.AddDocument(ctx, doc); err != nil {
				return stored, fmt.Errorf("add chunk: %w", err)
			}
			stored++
		}
	}

	m.log.Info("document ingested",
		zap.String("user_id", userID),
		zap.String("doc_id", docID),
		zap.String("filename", filename),
		zap.Int("pages", len(pages)),
		zap.Int("chunks", stored))
	return stored, nil
}

// Query returns up to k chunks from the user's index ordered by descending
// similarity. Returns ErrNoIndex when the user has never ingested anything.
func (m *Manager) Query(ctx context.Context, userID, text string, k int) ([]Result, error) {
	col := m.collection(userID)
	if col == nil {
		return nil, ErrNoIndex
	}
	if k <= 0 {
		k = 4
	}
	if n := col.Count(); n < k {
		if n == 0 {
			return nil, nil
		}
		k = n
	}

	vec, err := m.queryEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	raw, err := col.QueryEmbedding(ctx, vec, k, map[string]string{"user_id": userID}, nil)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	results := make([]Result, 0, len(raw))
	for _, r := range raw {
		pg, _ := strconv.Atoi(r.Metadata["page"])
		results = append(results, Result{
			Content:  r.Content,
			Filename: r.Metadata["filename"],
			Page:     pg,
			DocID:    r.Metadata["doc_id"],
			Score:    float64(r.Similarity),
		})
	}
	return results, nil
}

// queryEmbedding embeds query text through the ristretto cache.
func (m *Manager) queryEmbedding(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := m.cache.Get(text); ok {
		if vec, ok := cached.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	m.cache.Set(text, vec, int64(len(vec)*4))
	return vec, nil
}

// Close releases the cache. The vector store needs no teardown.
func (m *Manager) Close() error {
	m.cache.Close()
	return nil
}
