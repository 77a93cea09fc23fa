package scheme

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encryptRow(t *testing.T, row []float64) *Ciphertext {
	t.Helper()
	ctx, keys := fixture(t)
	ct, err := ctx.Encrypt(keys.Public, row)
	require.NoError(t, err)
	return ct
}

func decryptRow(t *testing.T, ct *Ciphertext) []float64 {
	t.Helper()
	ctx, keys := fixture(t)
	got, err := ctx.Decrypt(keys.Secret, ct)
	require.NoError(t, err)
	return got
}

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	ctx, keys := fixture(t)
	return ctx.NewEvaluator(keys.Evaluation)
}

func TestAdd(t *testing.T) {
	eval := newTestEvaluator(t)

	a := encryptRow(t, []float64{1, 2, 3})
	b := encryptRow(t, []float64{10, 20, 30})

	sum, err := eval.Add(a, b)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Depth())

	got := decryptRow(t, sum)
	for i, want := range []float64{11, 22, 33} {
		assert.InDelta(t, want, got[i], epsilon)
	}
}

func TestSub(t *testing.T) {
	eval := newTestEvaluator(t)

	a := encryptRow(t, []float64{5, 5, 5})
	b := encryptRow(t, []float64{1, 2, 3})

	diff, err := eval.Sub(a, b)
	require.NoError(t, err)

	got := decryptRow(t, diff)
	for i, want := range []float64{4, 3, 2} {
		assert.InDelta(t, want, got[i], epsilon)
	}
}

func TestAddConst(t *testing.T) {
	eval := newTestEvaluator(t)

	ct := encryptRow(t, []float64{1, 2})
	out, err := eval.AddConst(ct, 2.5)
	require.NoError(t, err)

	got := decryptRow(t, out)
	assert.InDelta(t, 3.5, got[0], epsilon)
	assert.InDelta(t, 4.5, got[1], epsilon)
}

func TestScalarMul(t *testing.T) {
	eval := newTestEvaluator(t)

	ct := encryptRow(t, []float64{2, -4, 6})
	out, err := eval.ScalarMul(ct, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Depth())

	got := decryptRow(t, out)
	for i, want := range []float64{1, -2, 3} {
		assert.InDelta(t, want, got[i], epsilon)
	}
}

func TestScalarMulChainKeepsScale(t *testing.T) {
	eval := newTestEvaluator(t)

	// A scaled ciphertext must still add cleanly with a fresh one.
	ct := encryptRow(t, []float64{8, 8})
	scaled, err := eval.ScalarMul(ct, 0.25)
	require.NoError(t, err)

	fresh := encryptRow(t, []float64{1, 1})
	sum, err := eval.Add(scaled, fresh)
	require.NoError(t, err)

	got := decryptRow(t, sum)
	assert.InDelta(t, 3, got[0], epsilon)
}

func TestMulPlain(t *testing.T) {
	eval := newTestEvaluator(t)

	ct := encryptRow(t, []float64{1, 2, 3})
	out, err := eval.MulPlain(ct, []float64{0.2, -0.1, 0.3})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Depth())

	got := decryptRow(t, out)
	for i, want := range []float64{0.2, -0.2, 0.9} {
		assert.InDelta(t, want, got[i], epsilon)
	}
}

func TestMul(t *testing.T) {
	eval := newTestEvaluator(t)

	a := encryptRow(t, []float64{3, -2})
	b := encryptRow(t, []float64{3, -2})

	sq, err := eval.Mul(a, b)
	require.NoError(t, err)
	assert.Equal(t, 1, sq.Depth())

	got := decryptRow(t, sq)
	assert.InDelta(t, 9, got[0], epsilon)
	assert.InDelta(t, 4, got[1], epsilon)
}

func TestMulDepthBudget(t *testing.T) {
	eval := newTestEvaluator(t)

	a := encryptRow(t, []float64{2})
	sq, err := eval.Mul(a, a)
	require.NoError(t, err)

	_, err = eval.Mul(sq, sq)
	require.ErrorIs(t, err, ErrScheme)

	fresh := encryptRow(t, []float64{2})
	_, err = eval.Mul(sq, fresh)
	require.ErrorIs(t, err, ErrScheme)
}

func TestDepthSurvivesAdditiveOps(t *testing.T) {
	eval := newTestEvaluator(t)

	a := encryptRow(t, []float64{2})
	sq, err := eval.Mul(a, a)
	require.NoError(t, err)

	sum, err := eval.Add(sq, sq)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Depth())

	_, err = eval.Mul(sum, a)
	require.ErrorIs(t, err, ErrScheme)
}

func TestRotate(t *testing.T) {
	eval := newTestEvaluator(t)

	ct := encryptRow(t, []float64{10, 20, 30, 40, 50})

	// 3 is not a power of two, so this exercises the step decomposition.
	out, err := eval.Rotate(ct, 3)
	require.NoError(t, err)

	got := decryptRow(t, out)
	assert.InDelta(t, 40, got[0], epsilon)
	assert.InDelta(t, 50, got[1], epsilon)
}

func TestRotateZeroCopies(t *testing.T) {
	eval := newTestEvaluator(t)

	ct := encryptRow(t, []float64{1, 2})
	out, err := eval.Rotate(ct, 0)
	require.NoError(t, err)
	require.NotSame(t, ct, out)

	got := decryptRow(t, out)
	assert.InDelta(t, 1, got[0], epsilon)
}

func TestRotateOutOfRange(t *testing.T) {
	ctx, _ := fixture(t)
	eval := newTestEvaluator(t)

	ct := encryptRow(t, []float64{1})
	_, err := eval.Rotate(ct, -1)
	require.ErrorIs(t, err, ErrScheme)
	_, err = eval.Rotate(ct, ctx.MaxSlots())
	require.ErrorIs(t, err, ErrScheme)
}

func TestExtract(t *testing.T) {
	eval := newTestEvaluator(t)

	ct := encryptRow(t, []float64{10, 20, 30})
	out, err := eval.Extract(ct, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Slots())
	assert.Equal(t, 0, out.Depth())

	got := decryptRow(t, out)
	assert.InDelta(t, 30, got[0], epsilon)
}

func TestExtractMasksOtherSlots(t *testing.T) {
	eval := newTestEvaluator(t)

	a := encryptRow(t, []float64{10, 20, 30})
	b := encryptRow(t, []float64{100, 200, 300})

	ea, err := eval.Extract(a, 1)
	require.NoError(t, err)
	eb, err := eval.Extract(b, 2)
	require.NoError(t, err)

	// With the other slots zeroed, extracted values add as scalars.
	sum, err := eval.Add(ea, eb)
	require.NoError(t, err)
	got := decryptRow(t, sum)
	assert.InDelta(t, 320, got[0], epsilon)
}

func TestExtractOutOfRange(t *testing.T) {
	eval := newTestEvaluator(t)

	ct := encryptRow(t, []float64{1, 2, 3})
	_, err := eval.Extract(ct, 3)
	require.ErrorIs(t, err, ErrScheme)
}

func TestSumSlots(t *testing.T) {
	eval := newTestEvaluator(t)

	ct := encryptRow(t, []float64{1, 2, 3, 4, 5})
	out, err := eval.SumSlots(ct)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Slots())

	got := decryptRow(t, out)
	assert.InDelta(t, 15, got[0], epsilon)
}

func TestCrossKeyOperand(t *testing.T) {
	ctx, _ := fixture(t)
	eval := newTestEvaluator(t)

	other, err := ctx.GenKeyPair()
	require.NoError(t, err)
	foreign, err := ctx.Encrypt(other.Public, []float64{1})
	require.NoError(t, err)

	native := encryptRow(t, []float64{1})

	_, err = eval.Add(native, foreign)
	require.ErrorIs(t, err, ErrScheme)
	_, err = eval.Mul(native, foreign)
	require.ErrorIs(t, err, ErrScheme)
	_, err = eval.Rotate(foreign, 1)
	require.ErrorIs(t, err, ErrScheme)
}

func TestSlotLayoutMismatch(t *testing.T) {
	eval := newTestEvaluator(t)

	a := encryptRow(t, []float64{1, 2})
	b := encryptRow(t, []float64{1, 2, 3})

	_, err := eval.Add(a, b)
	require.ErrorIs(t, err, ErrScheme)
}
