// Package analytics implements the column-wise aggregation engine: sum,
// average, variance and count over a set of encrypted row vectors, built
// entirely on the scheme's operation set and bounded to a single
// ciphertext-ciphertext multiplication.
package analytics

import (
	"fmt"

	"he-analytics/internal/scheme"
)

// Dataset is a set of encrypted rows sharing one public key and one column
// layout. It never carries plaintext values.
type Dataset struct {
	Rows        []*scheme.Ciphertext
	PublicKey   *scheme.PublicKey
	ColumnNames []string
	RowCount    int
}

// Validate checks the dataset's internal consistency before any
// homomorphic work: at least one row, row count matching the ciphertext
// list, and every ciphertext under the dataset's public key with the
// declared column layout.
func (d *Dataset) Validate() error {
	if len(d.Rows) == 0 {
		return fmt.Errorf("%w: dataset has no encrypted rows", scheme.ErrValidation)
	}
	if d.RowCount != len(d.Rows) {
		return fmt.Errorf("%w: declared row count %d but %d ciphertexts supplied", scheme.ErrValidation, d.RowCount, len(d.Rows))
	}
	if len(d.ColumnNames) == 0 {
		return fmt.Errorf("%w: dataset has no columns", scheme.ErrValidation)
	}
	if d.PublicKey == nil {
		return fmt.Errorf("%w: dataset has no public key", scheme.ErrValidation)
	}
	for i, row := range d.Rows {
		if row.KeyID() != d.PublicKey.ID() {
			return fmt.Errorf("%w: row %d encrypted under key %.8s, dataset key is %.8s",
				scheme.ErrKeyMismatch, i, row.KeyID(), d.PublicKey.ID())
		}
		if row.Slots() != len(d.ColumnNames) {
			return fmt.Errorf("%w: row %d packs %d slots, dataset declares %d columns",
				scheme.ErrValidation, i, row.Slots(), len(d.ColumnNames))
		}
	}
	return nil
}

// ColumnSelector picks the column an aggregate targets. Resolution order:
// explicit index, then name, then column 0. The no-selector case is a
// single default column, not an aggregate over all columns; that is a
// documented policy choice, since a slot-extraction pass targets exactly
// one column.
type ColumnSelector struct {
	Index *int
	Name  string
}

// Resolve maps the selector onto the dataset's column layout.
func (s ColumnSelector) Resolve(columns []string) (int, error) {
	if s.Index != nil {
		if *s.Index < 0 || *s.Index >= len(columns) {
			return 0, fmt.Errorf("%w: index %d, dataset has %d columns", scheme.ErrColumnRange, *s.Index, len(columns))
		}
		return *s.Index, nil
	}
	if s.Name != "" {
		for i, name := range columns {
			if name == s.Name {
				return i, nil
			}
		}
		return 0, fmt.Errorf("%w: no column named %q", scheme.ErrColumnRange, s.Name)
	}
	return 0, nil
}

// Operation is an aggregate kind.
type Operation string

const (
	OpSum      Operation = "sum"
	OpAverage  Operation = "average"
	OpVariance Operation = "variance"
	OpCount    Operation = "count"
)

// ParseOperation validates an operation name from a request.
func ParseOperation(s string) (Operation, error) {
	switch Operation(s) {
	case OpSum, OpAverage, OpVariance, OpCount:
		return Operation(s), nil
	default:
		return "", fmt.Errorf("%w: unknown operation %q", scheme.ErrValidation, s)
	}
}
