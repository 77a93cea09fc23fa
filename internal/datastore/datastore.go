// Package datastore stores registered encrypted datasets so clients can
// upload once and run several aggregates against the same handle. Handles
// are content hashes, which makes registration idempotent. The engines
// never read the store directly; the request surface resolves handles
// before calling them.
package datastore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when no dataset exists under a handle.
var ErrNotFound = errors.New("dataset not found")

// ID is a dataset handle.
type ID string

// Record is a serialized encrypted dataset: raw ciphertext rows plus the
// envelope metadata needed to rebuild them. No plaintext values.
type Record struct {
	KeyID       string    `json:"key_id"`
	ColumnNames []string  `json:"column_names"`
	Rows        [][]byte  `json:"rows"`
	CreatedAt   time.Time `json:"created_at"`
}

// ComputeID derives the content-hash handle for a record.
func ComputeID(rec Record) ID {
	h := sha256.New()
	h.Write([]byte(rec.KeyID))
	for _, name := range rec.ColumnNames {
		h.Write([]byte{0})
		h.Write([]byte(name))
	}
	for _, row := range rec.Rows {
		h.Write(row)
	}
	return ID(hex.EncodeToString(h.Sum(nil)))
}

// Store is the dataset storage contract.
type Store interface {
	Put(ctx context.Context, rec Record) (ID, error)
	Get(ctx context.Context, id ID) (Record, error)
	Close() error
}

// MemoryStore keeps datasets in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[ID]Record
}

// NewMemoryStore creates an empty in-memory dataset store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[ID]Record)}
}

func (s *MemoryStore) Put(ctx context.Context, rec Record) (ID, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	id := ComputeID(rec)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[id]; !exists {
		s.data[id] = rec
	}
	return id, nil
}

func (s *MemoryStore) Get(ctx context.Context, id ID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}
