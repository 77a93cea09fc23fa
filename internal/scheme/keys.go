package scheme

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// PublicKey is an encryption key tagged with its fingerprint. The
// fingerprint ties every ciphertext to the key pair that produced it.
type PublicKey struct {
	pk *rlwe.PublicKey
	id string
}

// ID returns the hex SHA-256 fingerprint of the serialized key.
func (p *PublicKey) ID() string { return p.id }

// Bytes serializes the key for transport.
func (p *PublicKey) Bytes() ([]byte, error) { return p.pk.MarshalBinary() }

// SecretKey is the decryption key. It is generated and held by the data
// owner; nothing in the server-side engines ever takes one as input.
type SecretKey struct {
	sk    *rlwe.SecretKey
	keyID string
}

// KeyID returns the fingerprint of the matching public key.
func (s *SecretKey) KeyID() string { return s.keyID }

// Bytes serializes the key. Callers own its safekeeping.
func (s *SecretKey) Bytes() ([]byte, error) { return s.sk.MarshalBinary() }

// EvaluationKeys bundles the relinearization and rotation keys the server
// needs to evaluate on ciphertexts under one public key. They are derived
// from the secret key by the data owner and registered alongside the
// public key; they do not enable decryption.
type EvaluationKeys struct {
	keyID string
	set   *rlwe.MemEvaluationKeySet
	rlk   *rlwe.RelinearizationKey
	gks   []*rlwe.GaloisKey
}

// KeyID returns the fingerprint of the public key this set belongs to.
func (e *EvaluationKeys) KeyID() string { return e.keyID }

// RelinearizationKeyBytes serializes the relinearization key.
func (e *EvaluationKeys) RelinearizationKeyBytes() ([]byte, error) {
	return e.rlk.MarshalBinary()
}

// GaloisKeyBytes serializes each rotation key individually.
func (e *EvaluationKeys) GaloisKeyBytes() ([][]byte, error) {
	out := make([][]byte, len(e.gks))
	for i, gk := range e.gks {
		b, err := gk.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("marshal galois key %d: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}

// KeyPair is a full client-side key set: secret, public and evaluation
// keys. Only the public and evaluation parts ever leave the data owner.
type KeyPair struct {
	Public     *PublicKey
	Secret     *SecretKey
	Evaluation *EvaluationKeys
}

// GenKeyPair generates a key pair together with the relinearization key and
// the power-of-two rotation keys the operation set depends on.
func (c *Context) GenKeyPair() (*KeyPair, error) {
	kgen := ckks.NewKeyGenerator(c.params)
	sk := kgen.GenSecretKeyNew()
	pk := kgen.GenPublicKeyNew(sk)
	rlk := kgen.GenRelinearizationKeyNew(sk)

	steps := c.RotationSteps()
	galEls := make([]uint64, len(steps))
	for i, step := range steps {
		galEls[i] = c.params.GaloisElement(step)
	}
	gks := kgen.GenGaloisKeysNew(galEls, sk)

	pkBytes, err := pk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	id := fingerprint(pkBytes)

	return &KeyPair{
		Public: &PublicKey{pk: pk, id: id},
		Secret: &SecretKey{sk: sk, keyID: id},
		Evaluation: &EvaluationKeys{
			keyID: id,
			set:   rlwe.NewMemEvaluationKeySet(rlk, gks...),
			rlk:   rlk,
			gks:   gks,
		},
	}, nil
}

// PublicKeyFromBytes deserializes a public key received over the wire and
// recomputes its fingerprint.
func PublicKeyFromBytes(data []byte) (*PublicKey, error) {
	pk := &rlwe.PublicKey{}
	if err := pk.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: unmarshal public key: %v", ErrEncoding, err)
	}
	return &PublicKey{pk: pk, id: fingerprint(data)}, nil
}

// SecretKeyFromBytes deserializes a secret key. The fingerprint of the
// matching public key must be supplied, since it cannot be derived from the
// secret key alone.
func SecretKeyFromBytes(data []byte, keyID string) (*SecretKey, error) {
	sk := &rlwe.SecretKey{}
	if err := sk.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: unmarshal secret key: %v", ErrEncoding, err)
	}
	return &SecretKey{sk: sk, keyID: keyID}, nil
}

// EvaluationKeysFromBytes deserializes a registered evaluation key set.
func EvaluationKeysFromBytes(keyID string, rlkData []byte, gkData [][]byte) (*EvaluationKeys, error) {
	rlk := &rlwe.RelinearizationKey{}
	if err := rlk.UnmarshalBinary(rlkData); err != nil {
		return nil, fmt.Errorf("%w: unmarshal relinearization key: %v", ErrEncoding, err)
	}
	gks := make([]*rlwe.GaloisKey, len(gkData))
	for i, data := range gkData {
		gk := &rlwe.GaloisKey{}
		if err := gk.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("%w: unmarshal galois key %d: %v", ErrEncoding, i, err)
		}
		gks[i] = gk
	}
	return &EvaluationKeys{
		keyID: keyID,
		set:   rlwe.NewMemEvaluationKeySet(rlk, gks...),
		rlk:   rlk,
		gks:   gks,
	}, nil
}

func fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
