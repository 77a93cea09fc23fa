package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. It backs tests and
// deployments without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	nextID  int64
	closed  bool
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	rec.ID = s.nextID
	s.nextID++
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	// Newest first.
	matched := make([]Record, 0, len(s.records))
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if f.Operation != "" && rec.Operation != f.Operation {
			continue
		}
		matched = append(matched, rec)
	}

	if f.Offset >= len(matched) {
		return []Record{}, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}, ErrClosed
	}

	type agg struct {
		count    int
		failures int
		total    time.Duration
	}
	byOp := make(map[string]*agg)
	order := make([]string, 0)
	for _, rec := range s.records {
		a, ok := byOp[rec.Operation]
		if !ok {
			a = &agg{}
			byOp[rec.Operation] = a
			order = append(order, rec.Operation)
		}
		a.count++
		a.total += rec.Duration
		if rec.Status == StatusFailure {
			a.failures++
		}
	}

	stats := Stats{Total: len(s.records)}
	for _, op := range order {
		a := byOp[op]
		stats.Operations = append(stats.Operations, OperationStats{
			Operation:   op,
			Count:       a.count,
			Failures:    a.failures,
			AvgDuration: a.total / time.Duration(a.count),
		})
	}
	return stats, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
