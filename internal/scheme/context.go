// Package scheme wraps the CKKS approximate-arithmetic scheme behind the
// minimal operation set the analytics and inference engines are built on:
// encryption/decryption of packed row vectors, elementwise addition,
// plaintext scalar multiplication, a single budgeted ciphertext-ciphertext
// multiplication, and slot extraction/rotation. Ciphertexts carry the
// fingerprint of the public key they were created under and a running
// multiplicative-depth counter, so key-matching and depth invariants are
// enforced structurally rather than by convention.
package scheme

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// MaxDepth is the multiplicative-depth budget. Every algorithm in this
// repository performs at most one ciphertext-ciphertext multiplication per
// output; bootstrapping is out of scope, so there is no re-budgeting step.
const MaxDepth = 1

// Default CKKS parameter literal. LogQ carries four 40-bit rescaling moduli
// so the deepest pipeline (variance: slot extraction, mean scaling, one
// squaring, final 1/N scaling) fits the level budget without bootstrapping.
var defaultLiteral = ckks.ParametersLiteral{
	LogN:            14,
	LogQ:            []int{60, 40, 40, 40, 40, 60},
	LogP:            []int{61},
	LogDefaultScale: 40,
}

// Reduced ring degree for tests. Same modulus chain, faster key generation.
var testLiteral = ckks.ParametersLiteral{
	LogN:            13,
	LogQ:            []int{60, 40, 40, 40, 40, 60},
	LogP:            []int{61},
	LogDefaultScale: 40,
}

// Context holds the immutable scheme parameters shared by the codec, the
// key generator and the evaluators. It is constructed once at process start
// and passed around explicitly; it carries no per-request state.
type Context struct {
	params  ckks.Parameters
	encoder *ckks.Encoder
}

// NewContext creates a scheme context with the production parameters.
func NewContext() (*Context, error) {
	return newContext(defaultLiteral)
}

// NewTestContext creates a scheme context with a reduced ring degree,
// suitable for tests only.
func NewTestContext() (*Context, error) {
	return newContext(testLiteral)
}

func newContext(lit ckks.ParametersLiteral) (*Context, error) {
	params, err := ckks.NewParametersFromLiteral(lit)
	if err != nil {
		return nil, fmt.Errorf("ckks parameters: %w", err)
	}
	return &Context{
		params:  params,
		encoder: ckks.NewEncoder(params),
	}, nil
}

// Params exposes the underlying CKKS parameters.
func (c *Context) Params() ckks.Parameters { return c.params }

// MaxSlots is the number of plaintext slots a single ciphertext can pack,
// and therefore the maximum number of columns per encrypted row.
func (c *Context) MaxSlots() int { return c.params.MaxSlots() }

// MaxLevel is the number of rescaling levels available to an evaluation.
func (c *Context) MaxLevel() int { return c.params.MaxLevel() }

// RotationSteps lists the power-of-two left rotations the evaluator needs.
// Arbitrary slot shifts are decomposed into these steps, so clients only
// generate rotation keys for this fixed set.
func (c *Context) RotationSteps() []int {
	steps := make([]int, 0, c.params.LogMaxSlots())
	for i := 0; i < c.params.LogMaxSlots(); i++ {
		steps = append(steps, 1<<i)
	}
	return steps
}

// Info describes the scheme parameters for the /api/params endpoint.
type Info struct {
	Scheme   string `json:"scheme"`
	LogN     int    `json:"logN"`
	MaxSlots int    `json:"maxSlots"`
	MaxLevel int    `json:"maxLevel"`
	LogScale int    `json:"logScale"`
	MaxDepth int    `json:"maxDepth"`
}

// Info returns a plain description of the parameters in use.
func (c *Context) Info() Info {
	return Info{
		Scheme:   "CKKS",
		LogN:     c.params.LogN(),
		MaxSlots: c.params.MaxSlots(),
		MaxLevel: c.params.MaxLevel(),
		LogScale: c.params.LogDefaultScale(),
		MaxDepth: MaxDepth,
	}
}

// encoderCopy returns a private encoder instance. Lattigo encoders carry
// scratch buffers and are not safe for concurrent use.
func (c *Context) encoderCopy() *ckks.Encoder {
	return c.encoder.ShallowCopy()
}
