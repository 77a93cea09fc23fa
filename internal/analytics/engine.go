package analytics

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"he-analytics/internal/audit"
	"he-analytics/internal/scheme"
)

// AggregateResult is the outcome of one aggregation call: a single
// ciphertext holding the aggregate in slot 0, decryptable only by the
// secret-key holder, plus the operation and column it was computed for.
type AggregateResult struct {
	Operation  Operation
	Column     int
	ColumnName string
	RowCount   int
	Ciphertext *scheme.Ciphertext
}

// Engine computes aggregates over encrypted datasets. It keeps no state
// across calls: every request is recomputed from the ciphertexts it
// supplies, so concurrent requests never share partial results.
type Engine struct {
	scheme *scheme.Context
	audit  audit.Store
}

// NewEngine builds an aggregation engine over the given scheme context and
// audit sink.
func NewEngine(sc *scheme.Context, sink audit.Store) *Engine {
	return &Engine{scheme: sc, audit: sink}
}

// ComputeAggregate runs one aggregate over the dataset and emits exactly
// one audit record, success or failure, before returning. The evaluator
// must be bound to the dataset's public key. An audit append failure does
// not fail the computation; it is surfaced on the process log.
func (e *Engine) ComputeAggregate(ctx context.Context, eval *scheme.Evaluator, ds *Dataset, sel ColumnSelector, op Operation) (*AggregateResult, error) {
	started := time.Now()
	res, err := e.compute(eval, ds, sel, op)
	e.record(ctx, started, ds, res, op, err)
	return res, err
}

func (e *Engine) compute(eval *scheme.Evaluator, ds *Dataset, sel ColumnSelector, op Operation) (*AggregateResult, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	if eval.KeyID() != ds.PublicKey.ID() {
		return nil, fmt.Errorf("%w: evaluator bound to key %.8s, dataset under %.8s",
			scheme.ErrKeyMismatch, eval.KeyID(), ds.PublicKey.ID())
	}

	// Count never touches the selector: it is a property of the dataset,
	// re-encoded under the dataset's key so the response stays opaque.
	if op == OpCount {
		ct, err := e.scheme.Encrypt(ds.PublicKey, []float64{float64(ds.RowCount)})
		if err != nil {
			return nil, err
		}
		return &AggregateResult{Operation: op, Column: -1, RowCount: ds.RowCount, Ciphertext: ct}, nil
	}

	col, err := sel.Resolve(ds.ColumnNames)
	if err != nil {
		return nil, err
	}

	result := &AggregateResult{
		Operation:  op,
		Column:     col,
		ColumnName: ds.ColumnNames[col],
		RowCount:   ds.RowCount,
	}

	switch op {
	case OpSum:
		sum, _, err := e.columnSum(eval, ds, col)
		if err != nil {
			return nil, err
		}
		result.Ciphertext = sum
	case OpAverage:
		sum, _, err := e.columnSum(eval, ds, col)
		if err != nil {
			return nil, err
		}
		avg, err := eval.ScalarMul(sum, 1/float64(ds.RowCount))
		if err != nil {
			return nil, err
		}
		result.Ciphertext = avg
	case OpVariance:
		v, err := e.columnVariance(eval, ds, col)
		if err != nil {
			return nil, err
		}
		result.Ciphertext = v
	default:
		return nil, fmt.Errorf("%w: unknown operation %q", scheme.ErrValidation, op)
	}
	return result, nil
}

// columnSum extracts the selected column slot from every row and folds the
// extractions with Add. Purely additive beyond the extraction masks, so no
// multiplicative depth is spent. The per-row extractions are returned too,
// for the variance pass.
func (e *Engine) columnSum(eval *scheme.Evaluator, ds *Dataset, col int) (*scheme.Ciphertext, []*scheme.Ciphertext, error) {
	extracted := make([]*scheme.Ciphertext, len(ds.Rows))
	for i, row := range ds.Rows {
		ct, err := eval.Extract(row, col)
		if err != nil {
			return nil, nil, err
		}
		extracted[i] = ct
	}

	sum := extracted[0]
	for _, ct := range extracted[1:] {
		var err error
		if sum, err = eval.Add(sum, ct); err != nil {
			return nil, nil, err
		}
	}
	return sum, extracted, nil
}

// columnVariance computes the population variance in two passes with
// exactly one ciphertext-ciphertext multiplication per row: mean first,
// then the squared deviations. The mean is a server-internal intermediate;
// it is never part of the result. With a single row the deviation is zero
// by construction, so N=1 needs no special case.
func (e *Engine) columnVariance(eval *scheme.Evaluator, ds *Dataset, col int) (*scheme.Ciphertext, error) {
	sum, extracted, err := e.columnSum(eval, ds, col)
	if err != nil {
		return nil, err
	}
	invN := 1 / float64(ds.RowCount)
	mean, err := eval.ScalarMul(sum, invN)
	if err != nil {
		return nil, err
	}

	var acc *scheme.Ciphertext
	for _, x := range extracted {
		diff, err := eval.Sub(x, mean)
		if err != nil {
			return nil, err
		}
		sq, err := eval.Mul(diff, diff)
		if err != nil {
			return nil, err
		}
		if acc == nil {
			acc = sq
			continue
		}
		if acc, err = eval.Add(acc, sq); err != nil {
			return nil, err
		}
	}
	return eval.ScalarMul(acc, invN)
}

func (e *Engine) record(ctx context.Context, started time.Time, ds *Dataset, res *AggregateResult, op Operation, opErr error) {
	rec := audit.Record{
		Timestamp: started,
		Operation: string(op),
		Kind:      audit.KindComputation,
		Status:    audit.StatusSuccess,
		Duration:  time.Since(started),
		Metadata:  map[string]string{"rows": strconv.Itoa(len(ds.Rows))},
	}
	if res != nil && res.ColumnName != "" {
		rec.Metadata["column"] = res.ColumnName
	}
	if opErr != nil {
		rec.Status = audit.StatusFailure
		rec.Reason = fmt.Sprintf("%s: %v", scheme.Kind(opErr), opErr)
	}
	if err := e.audit.Append(ctx, rec); err != nil {
		log.Printf("audit append failed for %s: %v", op, err)
	}
}
