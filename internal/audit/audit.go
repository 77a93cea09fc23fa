// Package audit records one entry per completed engine operation. The
// engines append synchronously, exactly once per call, success or failure;
// durability of the store itself is the collaborator's problem, not the
// cryptographic core's.
package audit

import (
	"context"
	"errors"
	"time"
)

// Operation kinds, mirroring the log taxonomy of the service.
const (
	KindComputation = "computation"
	KindPrediction  = "ml_prediction"
	KindSystem      = "system"
)

// Status of a recorded operation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// ErrClosed is returned by stores that have been shut down.
var ErrClosed = errors.New("audit store closed")

// Record is a single append-only audit entry. Records are created on
// operation completion and never mutated or deleted.
type Record struct {
	ID        int64             `json:"id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Operation string            `json:"operation"`
	Kind      string            `json:"operation_type"`
	Status    Status            `json:"status"`
	Reason    string            `json:"reason,omitempty"`
	Duration  time.Duration     `json:"duration"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Filter narrows List queries.
type Filter struct {
	Operation string
	Limit     int
	Offset    int
}

// OperationStats aggregates records per operation.
type OperationStats struct {
	Operation   string        `json:"operation"`
	Count       int           `json:"count"`
	Failures    int           `json:"failures"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// Stats summarizes the whole log.
type Stats struct {
	Total      int              `json:"total"`
	Operations []OperationStats `json:"operations"`
}

// Store is the audit sink contract: serialized, atomic appends (one
// transaction per record) with concurrent reads for statistics and
// reporting.
type Store interface {
	Append(ctx context.Context, rec Record) error
	List(ctx context.Context, f Filter) ([]Record, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}
