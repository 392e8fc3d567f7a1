// Package checkpoint persists conversation thread state so a later turn can
// resume with full prior context. Threads are keyed by (user, thread); the
// user id is part of the key so thread ids colliding across users can never
// alias each other's history.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/mindloop/mindloop/core"
)

var bucketThreads = []byte("threads")

// Store is a durable thread checkpoint store backed by bbolt. A thread's
// history is append-only: Append rewrites the value atomically inside one
// update transaction, so readers never observe a partially written thread.
type Store struct {
	db  *bolt.DB
	log *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open opens (creating if needed) the checkpoint database at path.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketThreads)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init checkpoint bucket: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// threadKey builds the composite key. The user id comes first so a user's
// threads are contiguous in the bucket.
func threadKey(userID, threadID string) []byte {
	return []byte("user:" + userID + "|thread:" + threadID)
}

// Append durably appends messages to the thread, creating it if absent.
// The read-modify-write happens in a single transaction.
func (s *Store) Append(userID, threadID string, msgs ...core.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	key := threadKey(userID, threadID)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketThreads)
		var history []core.Message
		if raw := b.Get(key); len(raw) > 0 {
			if err := json.Unmarshal(raw, &history); err != nil {
				return fmt.Errorf("decode thread %s: %w", key, err)
			}
		}
		history = append(history, msgs...)
		raw, err := json.Marshal(history)
		if err != nil {
			return fmt.Errorf("encode thread: %w", err)
		}
		return b.Put(key, raw)
	})
}

// History returns the thread's committed messages in order. An unknown
// thread yields an empty history, not an error.
func (s *Store) History(userID, threadID string) ([]core.Message, error) {
	var history []core.Message
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketThreads).Get(threadKey(userID, threadID))
		if len(raw) == 0 {
			return nil
		}
		return json.Unmarshal(raw, &history)
	})
	if err != nil {
		return nil, fmt.Errorf("read thread history: %w", err)
	}
	return history, nil
}

// Close releases the underlying database. Safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
		s.log.Info("checkpoint store closed")
	})
	return s.closeErr
}
