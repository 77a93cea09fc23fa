package scheme

import "errors"

// Error taxonomy for the cryptographic core. Every failure surfaced to a
// caller wraps exactly one of these sentinels; none of them is retried
// internally since they stem from caller input, not transient conditions.
var (
	// ErrEncoding reports malformed or too-large plaintext/ciphertext input.
	ErrEncoding = errors.New("encoding error")
	// ErrKeyMismatch reports ciphertexts or keys that do not match across
	// an operation.
	ErrKeyMismatch = errors.New("key mismatch")
	// ErrScheme reports a violated operation-set invariant, such as an
	// exhausted multiplicative-depth budget.
	ErrScheme = errors.New("scheme error")
	// ErrColumnRange reports a column selector out of bounds.
	ErrColumnRange = errors.New("column out of range")
	// ErrValidation reports an empty or malformed request shape.
	ErrValidation = errors.New("validation error")
	// ErrSchemaMismatch reports a feature set that does not match the model.
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// Kind returns the stable tag for err, or "internal" if the error does not
// belong to the taxonomy. The HTTP layer and the audit recorder both key on
// these tags.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrEncoding):
		return "encoding_error"
	case errors.Is(err, ErrKeyMismatch):
		return "key_mismatch"
	case errors.Is(err, ErrScheme):
		return "scheme_error"
	case errors.Is(err, ErrColumnRange):
		return "column_range_error"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrSchemaMismatch):
		return "schema_mismatch"
	default:
		return "internal"
	}
}
