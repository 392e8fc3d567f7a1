// Package memory is the long-term semantic memory subsystem: an append-only
// per-user fact store and the extraction step that decides which durable
// facts in a user message are worth persisting.
package memory

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var bucketFacts = []byte("facts")

// Fact is one durable piece of personal information about a user.
// Facts are created only by the extraction step and never updated.
type Fact struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// FactStore persists facts in per-user namespaces. Each user gets a nested
// bucket; keys are bolt sequence numbers so List returns insertion order.
type FactStore struct {
	db  *bolt.DB
	log *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// OpenFactStore opens (creating if needed) the fact database at path.
func OpenFactStore(path string, log *zap.Logger) (*FactStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create fact dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open fact db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketFacts)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init fact bucket: %w", err)
	}
	return &FactStore{db: db, log: log}, nil
}

// Add appends facts to the user's namespace, assigning each a fresh id.
func (s *FactStore) Add(userID string, texts ...string) ([]Fact, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	facts := make([]Fact, 0, len(texts))
	err := s.db.Update(func(tx *bolt.Tx) error {
		ns, err := tx.Bucket(bucketFacts).CreateBucketIfNotExists([]byte(userID))
		if err != nil {
			return err
		}
		for _, text := range texts {
			fact := Fact{ID: uuid.New().String(), Text: text, CreatedAt: time.Now().UTC()}
			raw, err := json.Marshal(fact)
			if err != nil {
				return err
			}
			seq, err := ns.NextSequence()
			if err != nil {
				return err
			}
			key := make([]byte, 8)
			binary.BigEndian.PutUint64(key, seq)
			if err := ns.Put(key, raw); err != nil {
				return err
			}
			facts = append(facts, fact)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store facts: %w", err)
	}
	for _, f := range facts {
		s.log.Info("stored memory fact",
			zap.String("user_id", userID),
			zap.String("fact_id", f.ID),
			zap.String("text", f.Text))
	}
	return facts, nil
}

// List returns every fact in the user's namespace in insertion order.
func (s *FactStore) List(userID string) ([]Fact, error) {
	var facts []Fact
	err := s.db.View(func(tx *bolt.Tx) error {
		ns := tx.Bucket(bucketFacts).Bucket([]byte(userID))
		if ns == nil {
			return nil
		}
		return ns.ForEach(func(k, v []byte) error {
			var fact Fact
			if err := json.Unmarshal(v, &fact); err != nil {
				// Skip malformed entries instead of failing the whole read.
				return nil
			}
			facts = append(facts, fact)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	return facts, nil
}

// Close releases the underlying database. Safe to call more than once.
func (s *FactStore) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
		s.log.Info("fact store closed")
	})
	return s.closeErr
}
