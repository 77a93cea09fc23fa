package scheme

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
)

// Ciphertext is an opaque encrypted row vector. Beyond the raw scheme
// ciphertext it records the fingerprint of the public key it was created
// under, the number of occupied slots (source columns), and how much of the
// multiplicative-depth budget it has consumed. Ciphertexts are immutable:
// every operation in the set returns a fresh value.
type Ciphertext struct {
	ct    *rlwe.Ciphertext
	keyID string
	slots int
	depth int
}

// KeyID returns the fingerprint of the public key the value was encrypted
// under. Operations refuse to combine ciphertexts with different IDs.
func (c *Ciphertext) KeyID() string { return c.keyID }

// Slots returns the number of occupied slots.
func (c *Ciphertext) Slots() int { return c.slots }

// Depth returns the number of ciphertext-ciphertext multiplications this
// value has been through.
func (c *Ciphertext) Depth() int { return c.depth }

// Level returns the remaining rescaling levels.
func (c *Ciphertext) Level() int { return c.ct.Level() }

// Bytes serializes the raw ciphertext. Key fingerprint and slot count
// travel as envelope metadata alongside, not inside the scheme encoding.
func (c *Ciphertext) Bytes() ([]byte, error) { return c.ct.MarshalBinary() }

// CiphertextFromBytes deserializes a caller-supplied ciphertext and checks
// that its level is within the parameter bounds before it is let anywhere
// near an evaluator.
func (c *Context) CiphertextFromBytes(data []byte, keyID string, slots int) (*Ciphertext, error) {
	if slots < 1 || slots > c.MaxSlots() {
		return nil, fmt.Errorf("%w: slot count %d outside [1, %d]", ErrEncoding, slots, c.MaxSlots())
	}
	ct := new(rlwe.Ciphertext)
	if err := ct.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: unmarshal ciphertext: %v", ErrEncoding, err)
	}
	if ct.Level() < 0 || ct.Level() > c.params.MaxLevel() {
		return nil, fmt.Errorf("%w: ciphertext level %d outside [0, %d]", ErrEncoding, ct.Level(), c.params.MaxLevel())
	}
	return &Ciphertext{ct: ct, keyID: keyID, slots: slots}, nil
}
