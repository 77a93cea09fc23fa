package scheme

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// Encrypt packs row into one ciphertext, one column value per slot in
// order, and encrypts it under pub. Unused slots are zero-padded.
//
// Values are expected to stay within the scheme's dynamic range (roughly
// |v| < 2^20 under the default 40-bit scale). Values outside that range are
// still encrypted but silently lose precision; the codec does not clamp or
// reject them.
func (c *Context) Encrypt(pub *PublicKey, row []float64) (*Ciphertext, error) {
	if len(row) == 0 {
		return nil, fmt.Errorf("%w: empty row", ErrEncoding)
	}
	if len(row) > c.MaxSlots() {
		return nil, fmt.Errorf("%w: row has %d values, scheme supports at most %d slots", ErrEncoding, len(row), c.MaxSlots())
	}

	values := make([]float64, c.MaxSlots())
	copy(values, row)

	pt := ckks.NewPlaintext(c.params, c.params.MaxLevel())
	if err := c.encoderCopy().Encode(values, pt); err != nil {
		return nil, fmt.Errorf("%w: encode row: %v", ErrEncoding, err)
	}

	ct, err := ckks.NewEncryptor(c.params, pub.pk).EncryptNew(pt)
	if err != nil {
		return nil, fmt.Errorf("%w: encrypt row: %v", ErrEncoding, err)
	}

	return &Ciphertext{ct: ct, keyID: pub.id, slots: len(row)}, nil
}

// Decrypt recovers the packed values, accurate to the scheme's precision.
// The secret key must belong to the key pair the ciphertext was created
// under; a mismatch is a hard error, never a garbage decode.
func (c *Context) Decrypt(sec *SecretKey, ct *Ciphertext) ([]float64, error) {
	if sec.keyID != ct.keyID {
		return nil, fmt.Errorf("%w: ciphertext under key %.8s, secret key for %.8s", ErrKeyMismatch, ct.keyID, sec.keyID)
	}

	pt := ckks.NewDecryptor(c.params, sec.sk).DecryptNew(ct.ct)

	values := make([]float64, c.MaxSlots())
	if err := c.encoderCopy().Decode(pt, values); err != nil {
		return nil, fmt.Errorf("%w: decode plaintext: %v", ErrEncoding, err)
	}
	return values[:ct.slots], nil
}
