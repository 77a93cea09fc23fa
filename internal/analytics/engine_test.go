package analytics

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"he-analytics/internal/audit"
	"he-analytics/internal/scheme"
)

var (
	fixtureOnce sync.Once
	fixtureCtx  *scheme.Context
	fixtureKeys *scheme.KeyPair
	fixtureErr  error
)

func fixture(t *testing.T) (*scheme.Context, *scheme.KeyPair) {
	t.Helper()
	fixtureOnce.Do(func() {
		fixtureCtx, fixtureErr = scheme.NewTestContext()
		if fixtureErr != nil {
			return
		}
		fixtureKeys, fixtureErr = fixtureCtx.GenKeyPair()
	})
	require.NoError(t, fixtureErr)
	return fixtureCtx, fixtureKeys
}

const epsilon = 1e-2

// testDataset encrypts a two-column dataset: "id" with synthetic values and
// "score" with the values under test.
func testDataset(t *testing.T, scores []float64) *Dataset {
	t.Helper()
	ctx, keys := fixture(t)

	rows := make([]*scheme.Ciphertext, len(scores))
	for i, score := range scores {
		ct, err := ctx.Encrypt(keys.Public, []float64{float64(i * 10), score})
		require.NoError(t, err)
		rows[i] = ct
	}
	return &Dataset{
		Rows:        rows,
		PublicKey:   keys.Public,
		ColumnNames: []string{"id", "score"},
		RowCount:    len(scores),
	}
}

func testEngine(t *testing.T) (*Engine, *scheme.Evaluator, *audit.MemoryStore) {
	t.Helper()
	ctx, keys := fixture(t)
	sink := audit.NewMemoryStore()
	return NewEngine(ctx, sink), ctx.NewEvaluator(keys.Evaluation), sink
}

func decryptScalar(t *testing.T, ct *scheme.Ciphertext) float64 {
	t.Helper()
	ctx, keys := fixture(t)
	values, err := ctx.Decrypt(keys.Secret, ct)
	require.NoError(t, err)
	return values[0]
}

func colSelector(name string) ColumnSelector { return ColumnSelector{Name: name} }

func idxSelector(i int) ColumnSelector { return ColumnSelector{Index: &i} }

func TestSum(t *testing.T) {
	engine, eval, _ := testEngine(t)
	ds := testDataset(t, []float64{1, 2, 3, 4, 5})

	res, err := engine.ComputeAggregate(context.Background(), eval, ds, colSelector("score"), OpSum)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Column)
	assert.Equal(t, "score", res.ColumnName)
	assert.Equal(t, 5, res.RowCount)
	assert.InDelta(t, 15, decryptScalar(t, res.Ciphertext), epsilon)
}

func TestAverage(t *testing.T) {
	engine, eval, _ := testEngine(t)
	ds := testDataset(t, []float64{1, 2, 3, 4, 5})

	res, err := engine.ComputeAggregate(context.Background(), eval, ds, colSelector("score"), OpAverage)
	require.NoError(t, err)
	assert.InDelta(t, 3, decryptScalar(t, res.Ciphertext), epsilon)
}

func TestVariance(t *testing.T) {
	engine, eval, _ := testEngine(t)
	ds := testDataset(t, []float64{1, 2, 3, 4, 5})

	res, err := engine.ComputeAggregate(context.Background(), eval, ds, colSelector("score"), OpVariance)
	require.NoError(t, err)
	// Population variance of 1..5.
	assert.InDelta(t, 2, decryptScalar(t, res.Ciphertext), epsilon)
	// One squaring per row and nothing deeper.
	assert.Equal(t, 1, res.Ciphertext.Depth())
}

func TestVarianceSingleRow(t *testing.T) {
	engine, eval, _ := testEngine(t)
	ds := testDataset(t, []float64{42})

	res, err := engine.ComputeAggregate(context.Background(), eval, ds, colSelector("score"), OpVariance)
	require.NoError(t, err)
	assert.InDelta(t, 0, decryptScalar(t, res.Ciphertext), epsilon)
}

func TestCount(t *testing.T) {
	engine, eval, _ := testEngine(t)
	ds := testDataset(t, []float64{1, 2, 3, 4, 5})

	res, err := engine.ComputeAggregate(context.Background(), eval, ds, ColumnSelector{}, OpCount)
	require.NoError(t, err)
	assert.Equal(t, -1, res.Column)
	assert.InDelta(t, 5, decryptScalar(t, res.Ciphertext), epsilon)
}

func TestCountIgnoresSelector(t *testing.T) {
	engine, eval, _ := testEngine(t)
	ds := testDataset(t, []float64{1, 2, 3})

	// A selector that would be out of range for any column operation.
	res, err := engine.ComputeAggregate(context.Background(), eval, ds, idxSelector(99), OpCount)
	require.NoError(t, err)
	assert.InDelta(t, 3, decryptScalar(t, res.Ciphertext), epsilon)
}

func TestSelectorByIndex(t *testing.T) {
	engine, eval, _ := testEngine(t)
	ds := testDataset(t, []float64{1, 2, 3})

	// Column 0 holds 0, 10, 20.
	res, err := engine.ComputeAggregate(context.Background(), eval, ds, idxSelector(0), OpSum)
	require.NoError(t, err)
	assert.Equal(t, "id", res.ColumnName)
	assert.InDelta(t, 30, decryptScalar(t, res.Ciphertext), epsilon)
}

func TestSelectorDefaultsToFirstColumn(t *testing.T) {
	engine, eval, _ := testEngine(t)
	ds := testDataset(t, []float64{1, 2, 3})

	res, err := engine.ComputeAggregate(context.Background(), eval, ds, ColumnSelector{}, OpSum)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Column)
	assert.InDelta(t, 30, decryptScalar(t, res.Ciphertext), epsilon)
}

func TestSelectorOutOfRange(t *testing.T) {
	engine, eval, _ := testEngine(t)
	ds := testDataset(t, []float64{1, 2, 3})

	_, err := engine.ComputeAggregate(context.Background(), eval, ds, idxSelector(2), OpSum)
	require.ErrorIs(t, err, scheme.ErrColumnRange)

	_, err = engine.ComputeAggregate(context.Background(), eval, ds, colSelector("nonexistent"), OpSum)
	require.ErrorIs(t, err, scheme.ErrColumnRange)
}

func TestEmptyDataset(t *testing.T) {
	_, keys := fixture(t)
	engine, eval, sink := testEngine(t)

	ds := &Dataset{PublicKey: keys.Public, ColumnNames: []string{"score"}}
	_, err := engine.ComputeAggregate(context.Background(), eval, ds, ColumnSelector{}, OpSum)
	require.ErrorIs(t, err, scheme.ErrValidation)

	// The failure still lands in the audit log.
	recs, err := sink.List(context.Background(), audit.Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, audit.StatusFailure, recs[0].Status)
	assert.NotEmpty(t, recs[0].Reason)
}

func TestRowCountMismatch(t *testing.T) {
	engine, eval, _ := testEngine(t)
	ds := testDataset(t, []float64{1, 2, 3})
	ds.RowCount = 4

	_, err := engine.ComputeAggregate(context.Background(), eval, ds, ColumnSelector{}, OpSum)
	require.ErrorIs(t, err, scheme.ErrValidation)
}

func TestMixedKeyRows(t *testing.T) {
	ctx, _ := fixture(t)
	engine, eval, _ := testEngine(t)

	other, err := ctx.GenKeyPair()
	require.NoError(t, err)
	foreign, err := ctx.Encrypt(other.Public, []float64{1, 2})
	require.NoError(t, err)

	ds := testDataset(t, []float64{1, 2})
	ds.Rows[1] = foreign
	_, err = engine.ComputeAggregate(context.Background(), eval, ds, ColumnSelector{}, OpSum)
	require.ErrorIs(t, err, scheme.ErrKeyMismatch)
}

func TestAggregateIsRepeatable(t *testing.T) {
	engine, eval, _ := testEngine(t)
	ds := testDataset(t, []float64{2, 4, 6})

	first, err := engine.ComputeAggregate(context.Background(), eval, ds, colSelector("score"), OpAverage)
	require.NoError(t, err)
	second, err := engine.ComputeAggregate(context.Background(), eval, ds, colSelector("score"), OpAverage)
	require.NoError(t, err)

	assert.InDelta(t, decryptScalar(t, first.Ciphertext), decryptScalar(t, second.Ciphertext), epsilon)
}

func TestOneAuditRecordPerCall(t *testing.T) {
	engine, eval, sink := testEngine(t)
	ds := testDataset(t, []float64{1, 2, 3})

	_, err := engine.ComputeAggregate(context.Background(), eval, ds, colSelector("score"), OpSum)
	require.NoError(t, err)
	_, err = engine.ComputeAggregate(context.Background(), eval, ds, idxSelector(9), OpVariance)
	require.ErrorIs(t, err, scheme.ErrColumnRange)

	recs, err := sink.List(context.Background(), audit.Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	stats, err := sink.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
}

func TestParseOperation(t *testing.T) {
	for _, name := range []string{"sum", "average", "variance", "count"} {
		op, err := ParseOperation(name)
		require.NoError(t, err)
		assert.Equal(t, Operation(name), op)
	}
	_, err := ParseOperation("median")
	require.ErrorIs(t, err, scheme.ErrValidation)
}
