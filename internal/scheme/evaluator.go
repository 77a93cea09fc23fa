package scheme

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// Evaluator executes the homomorphic operation set over ciphertexts created
// under one specific public key. It is built from the evaluation keys the
// data owner registered and refuses operands carrying any other key
// fingerprint. The zero-depth operations (Add, Sub, ScalarMul, Rotate,
// Extract) never touch the multiplicative budget; Mul consumes it.
type Evaluator struct {
	ctx   *Context
	eval  *ckks.Evaluator
	keyID string
}

// NewEvaluator builds an evaluator bound to the key pair that produced ek.
func (c *Context) NewEvaluator(ek *EvaluationKeys) *Evaluator {
	return &Evaluator{
		ctx:   c,
		eval:  ckks.NewEvaluator(c.params, ek.set),
		keyID: ek.keyID,
	}
}

// KeyID returns the fingerprint of the public key this evaluator serves.
func (e *Evaluator) KeyID() string { return e.keyID }

// ShallowCopy returns an evaluator sharing the same keys but with private
// scratch buffers. Lattigo evaluators are not safe for concurrent use, so
// each request takes its own copy.
func (e *Evaluator) ShallowCopy() *Evaluator {
	return &Evaluator{ctx: e.ctx, eval: e.eval.ShallowCopy(), keyID: e.keyID}
}

func (e *Evaluator) check(cts ...*Ciphertext) error {
	for _, ct := range cts {
		if ct.keyID != e.keyID {
			return fmt.Errorf("%w: ciphertext under key %.8s, evaluator bound to %.8s", ErrScheme, ct.keyID, e.keyID)
		}
	}
	return nil
}

func (e *Evaluator) checkPair(a, b *Ciphertext) error {
	if err := e.check(a, b); err != nil {
		return err
	}
	if a.slots != b.slots {
		return fmt.Errorf("%w: slot layout mismatch (%d vs %d)", ErrScheme, a.slots, b.slots)
	}
	return nil
}

// alignPair drops the higher-level operand down so both sit at the same
// level, without mutating the inputs.
func (e *Evaluator) alignPair(a, b *rlwe.Ciphertext) (*rlwe.Ciphertext, *rlwe.Ciphertext) {
	if a.Level() == b.Level() {
		return a, b
	}
	if a.Level() > b.Level() {
		a = a.CopyNew()
		e.eval.DropLevel(a, a.Level()-b.Level())
	} else {
		b = b.CopyNew()
		e.eval.DropLevel(b, b.Level()-a.Level())
	}
	return a, b
}

// Add returns the elementwise sum. Depth cost 0.
func (e *Evaluator) Add(a, b *Ciphertext) (*Ciphertext, error) {
	if err := e.checkPair(a, b); err != nil {
		return nil, err
	}
	x, y := e.alignPair(a.ct, b.ct)
	out, err := e.eval.AddNew(x, y)
	if err != nil {
		return nil, fmt.Errorf("%w: add: %v", ErrScheme, err)
	}
	return &Ciphertext{ct: out, keyID: e.keyID, slots: a.slots, depth: maxDepthOf(a, b)}, nil
}

// Sub returns the elementwise difference. Additive only, depth cost 0.
func (e *Evaluator) Sub(a, b *Ciphertext) (*Ciphertext, error) {
	if err := e.checkPair(a, b); err != nil {
		return nil, err
	}
	x, y := e.alignPair(a.ct, b.ct)
	out, err := e.eval.SubNew(x, y)
	if err != nil {
		return nil, fmt.Errorf("%w: sub: %v", ErrScheme, err)
	}
	return &Ciphertext{ct: out, keyID: e.keyID, slots: a.slots, depth: maxDepthOf(a, b)}, nil
}

// AddConst adds a known-in-the-clear scalar to every slot. Depth cost 0 and
// no level is consumed.
func (e *Evaluator) AddConst(ct *Ciphertext, v float64) (*Ciphertext, error) {
	if err := e.check(ct); err != nil {
		return nil, err
	}
	values := make([]float64, e.ctx.MaxSlots())
	for i := range values {
		values[i] = v
	}
	pt := ckks.NewPlaintext(e.ctx.params, ct.ct.Level())
	pt.Scale = ct.ct.Scale
	if err := e.ctx.encoderCopy().Encode(values, pt); err != nil {
		return nil, fmt.Errorf("%w: encode constant: %v", ErrScheme, err)
	}
	out, err := e.eval.AddNew(ct.ct, pt)
	if err != nil {
		return nil, fmt.Errorf("%w: add constant: %v", ErrScheme, err)
	}
	return &Ciphertext{ct: out, keyID: e.keyID, slots: ct.slots, depth: ct.depth}, nil
}

// ScalarMul scales every slot by a known-in-the-clear number. Depth cost 0;
// one rescaling level is consumed.
func (e *Evaluator) ScalarMul(ct *Ciphertext, v float64) (*Ciphertext, error) {
	if err := e.check(ct); err != nil {
		return nil, err
	}
	values := make([]float64, e.ctx.MaxSlots())
	for i := range values {
		values[i] = v
	}
	out, err := e.mulPlain(ct.ct, values)
	if err != nil {
		return nil, err
	}
	return &Ciphertext{ct: out, keyID: e.keyID, slots: ct.slots, depth: ct.depth}, nil
}

// MulPlain scales the ciphertext elementwise by a plaintext vector, slot by
// slot. Like ScalarMul it is depth-free and consumes one level. Slots past
// len(values) are zeroed.
func (e *Evaluator) MulPlain(ct *Ciphertext, values []float64) (*Ciphertext, error) {
	if err := e.check(ct); err != nil {
		return nil, err
	}
	if len(values) > e.ctx.MaxSlots() {
		return nil, fmt.Errorf("%w: plaintext vector has %d values, scheme supports %d slots", ErrScheme, len(values), e.ctx.MaxSlots())
	}
	padded := make([]float64, e.ctx.MaxSlots())
	copy(padded, values)
	out, err := e.mulPlain(ct.ct, padded)
	if err != nil {
		return nil, err
	}
	return &Ciphertext{ct: out, keyID: e.keyID, slots: ct.slots, depth: ct.depth}, nil
}

// mulPlain multiplies by an encoded plaintext and rescales. The plaintext
// is encoded at the scale of the modulus about to be dropped, so the result
// keeps the operand's exact scale.
func (e *Evaluator) mulPlain(ct *rlwe.Ciphertext, values []float64) (*rlwe.Ciphertext, error) {
	level := ct.Level()
	if level < 1 {
		return nil, fmt.Errorf("%w: no rescaling level left for a plaintext multiplication", ErrScheme)
	}
	pt := ckks.NewPlaintext(e.ctx.params, level)
	pt.Scale = rlwe.NewScale(e.ctx.params.Q()[level])
	if err := e.ctx.encoderCopy().Encode(values, pt); err != nil {
		return nil, fmt.Errorf("%w: encode plaintext vector: %v", ErrScheme, err)
	}
	out, err := e.eval.MulNew(ct, pt)
	if err != nil {
		return nil, fmt.Errorf("%w: plaintext multiplication: %v", ErrScheme, err)
	}
	if err := e.eval.Rescale(out, out); err != nil {
		return nil, fmt.Errorf("%w: rescale: %v", ErrScheme, err)
	}
	return out, nil
}

// Mul returns the elementwise ciphertext-ciphertext product. This is the
// one depth-1 operation; chaining past the budget fails rather than
// producing an undecryptable result.
func (e *Evaluator) Mul(a, b *Ciphertext) (*Ciphertext, error) {
	if err := e.checkPair(a, b); err != nil {
		return nil, err
	}
	depth := a.depth + b.depth + 1
	if depth > MaxDepth {
		return nil, fmt.Errorf("%w: multiplication depth %d exceeds budget %d", ErrScheme, depth, MaxDepth)
	}
	x, y := e.alignPair(a.ct, b.ct)
	if x.Level() < 1 {
		return nil, fmt.Errorf("%w: no rescaling level left for a multiplication", ErrScheme)
	}
	out, err := e.eval.MulRelinNew(x, y)
	if err != nil {
		return nil, fmt.Errorf("%w: multiplication: %v", ErrScheme, err)
	}
	if err := e.eval.Rescale(out, out); err != nil {
		return nil, fmt.Errorf("%w: rescale: %v", ErrScheme, err)
	}
	return &Ciphertext{ct: out, keyID: e.keyID, slots: a.slots, depth: depth}, nil
}

// Rotate shifts slots left by k positions, so the value at slot k lands in
// slot 0. The shift is decomposed into the power-of-two rotations the
// registered Galois keys cover. Depth cost 0.
func (e *Evaluator) Rotate(ct *Ciphertext, k int) (*Ciphertext, error) {
	if err := e.check(ct); err != nil {
		return nil, err
	}
	if k < 0 || k >= e.ctx.MaxSlots() {
		return nil, fmt.Errorf("%w: rotation by %d outside [0, %d)", ErrScheme, k, e.ctx.MaxSlots())
	}
	cur := ct.ct
	for step := 1; k > 0; step <<= 1 {
		if k&1 == 1 {
			rot, err := e.eval.RotateNew(cur, step)
			if err != nil {
				return nil, fmt.Errorf("%w: rotate by %d: %v", ErrScheme, step, err)
			}
			cur = rot
		}
		k >>= 1
	}
	if cur == ct.ct {
		cur = ct.ct.CopyNew()
	}
	return &Ciphertext{ct: cur, keyID: e.keyID, slots: ct.slots, depth: ct.depth}, nil
}

// Extract isolates the value at the given slot into slot 0, zeroing all
// other slots: a rotation followed by a basis mask. Depth cost 0; one level
// is consumed by the mask.
func (e *Evaluator) Extract(ct *Ciphertext, slot int) (*Ciphertext, error) {
	if err := e.check(ct); err != nil {
		return nil, err
	}
	if slot < 0 || slot >= ct.slots {
		return nil, fmt.Errorf("%w: slot %d outside ciphertext layout of %d slots", ErrScheme, slot, ct.slots)
	}
	rotated, err := e.Rotate(ct, slot)
	if err != nil {
		return nil, err
	}
	mask := make([]float64, e.ctx.MaxSlots())
	mask[0] = 1
	out, err := e.mulPlain(rotated.ct, mask)
	if err != nil {
		return nil, err
	}
	return &Ciphertext{ct: out, keyID: e.keyID, slots: 1, depth: ct.depth}, nil
}

// SumSlots folds all slots into a single total by log-many rotate-and-add
// rounds; afterwards every slot, slot 0 included, holds the sum. Depth
// cost 0.
func (e *Evaluator) SumSlots(ct *Ciphertext) (*Ciphertext, error) {
	if err := e.check(ct); err != nil {
		return nil, err
	}
	acc := ct.ct.CopyNew()
	for _, step := range e.ctx.RotationSteps() {
		rot, err := e.eval.RotateNew(acc, step)
		if err != nil {
			return nil, fmt.Errorf("%w: rotate by %d: %v", ErrScheme, step, err)
		}
		if err := e.eval.Add(acc, rot, acc); err != nil {
			return nil, fmt.Errorf("%w: add: %v", ErrScheme, err)
		}
	}
	return &Ciphertext{ct: acc, keyID: e.keyID, slots: 1, depth: ct.depth}, nil
}

func maxDepthOf(a, b *Ciphertext) int {
	if a.depth > b.depth {
		return a.depth
	}
	return b.depth
}
