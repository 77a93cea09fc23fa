package scheme

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Key generation dominates test time, so every test in the package shares
// one context and one key pair.
var (
	fixtureOnce sync.Once
	fixtureCtx  *Context
	fixtureKeys *KeyPair
	fixtureErr  error
)

func fixture(t testing.TB) (*Context, *KeyPair) {
	t.Helper()
	fixtureOnce.Do(func() {
		fixtureCtx, fixtureErr = NewTestContext()
		if fixtureErr != nil {
			return
		}
		fixtureKeys, fixtureErr = fixtureCtx.GenKeyPair()
	})
	require.NoError(t, fixtureErr)
	return fixtureCtx, fixtureKeys
}

const epsilon = 1e-3

func TestEncryptDecryptRoundTrip(t *testing.T) {
	ctx, keys := fixture(t)

	row := []float64{1.5, -2.25, 3.125, 100.0}
	ct, err := ctx.Encrypt(keys.Public, row)
	require.NoError(t, err)
	assert.Equal(t, keys.Public.ID(), ct.KeyID())
	assert.Equal(t, len(row), ct.Slots())
	assert.Equal(t, 0, ct.Depth())

	got, err := ctx.Decrypt(keys.Secret, ct)
	require.NoError(t, err)
	require.Len(t, got, len(row))
	for i, want := range row {
		assert.InDelta(t, want, got[i], epsilon, "slot %d", i)
	}
}

func TestEncryptEmptyRow(t *testing.T) {
	ctx, keys := fixture(t)

	_, err := ctx.Encrypt(keys.Public, nil)
	require.ErrorIs(t, err, ErrEncoding)
}

func TestEncryptTooManyColumns(t *testing.T) {
	ctx, keys := fixture(t)

	row := make([]float64, ctx.MaxSlots()+1)
	_, err := ctx.Encrypt(keys.Public, row)
	require.ErrorIs(t, err, ErrEncoding)
}

func TestDecryptWrongKey(t *testing.T) {
	ctx, keys := fixture(t)

	other, err := ctx.GenKeyPair()
	require.NoError(t, err)

	ct, err := ctx.Encrypt(keys.Public, []float64{42})
	require.NoError(t, err)

	_, err = ctx.Decrypt(other.Secret, ct)
	require.ErrorIs(t, err, ErrKeyMismatch)
}

func TestCiphertextTransportRoundTrip(t *testing.T) {
	ctx, keys := fixture(t)

	row := []float64{7.25, -0.5}
	ct, err := ctx.Encrypt(keys.Public, row)
	require.NoError(t, err)

	data, err := ct.Bytes()
	require.NoError(t, err)

	back, err := ctx.CiphertextFromBytes(data, keys.Public.ID(), len(row))
	require.NoError(t, err)

	got, err := ctx.Decrypt(keys.Secret, back)
	require.NoError(t, err)
	for i, want := range row {
		assert.InDelta(t, want, got[i], epsilon)
	}
}

func TestCiphertextFromBytesRejectsBadSlots(t *testing.T) {
	ctx, keys := fixture(t)

	ct, err := ctx.Encrypt(keys.Public, []float64{1})
	require.NoError(t, err)
	data, err := ct.Bytes()
	require.NoError(t, err)

	_, err = ctx.CiphertextFromBytes(data, keys.Public.ID(), 0)
	require.ErrorIs(t, err, ErrEncoding)

	_, err = ctx.CiphertextFromBytes(data, keys.Public.ID(), ctx.MaxSlots()+1)
	require.ErrorIs(t, err, ErrEncoding)
}

func TestKeyTransportRoundTrip(t *testing.T) {
	ctx, keys := fixture(t)

	pkBytes, err := keys.Public.Bytes()
	require.NoError(t, err)
	pub, err := PublicKeyFromBytes(pkBytes)
	require.NoError(t, err)
	assert.Equal(t, keys.Public.ID(), pub.ID())

	skBytes, err := keys.Secret.Bytes()
	require.NoError(t, err)
	sec, err := SecretKeyFromBytes(skBytes, keys.Public.ID())
	require.NoError(t, err)

	ct, err := ctx.Encrypt(pub, []float64{3.5})
	require.NoError(t, err)
	got, err := ctx.Decrypt(sec, ct)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, got[0], epsilon)
}
