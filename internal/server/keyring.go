package server

import (
	"fmt"
	"sync"

	"he-analytics/internal/scheme"
)

// Keyring tracks the public and evaluation keys clients have registered.
// One evaluator is built per key at registration and handed out as shallow
// copies, since lattigo evaluators are not safe for concurrent use.
type Keyring struct {
	scheme *scheme.Context

	mu      sync.RWMutex
	entries map[string]keyEntry
}

type keyEntry struct {
	pub  *scheme.PublicKey
	eval *scheme.Evaluator
}

// NewKeyring creates an empty keyring over the scheme context.
func NewKeyring(sc *scheme.Context) *Keyring {
	return &Keyring{scheme: sc, entries: make(map[string]keyEntry)}
}

// Register stores a public key with its evaluation keys and returns the
// key fingerprint. Re-registering the same key is idempotent.
func (k *Keyring) Register(pubBytes, rlkBytes []byte, gkBytes [][]byte) (string, error) {
	pub, err := scheme.PublicKeyFromBytes(pubBytes)
	if err != nil {
		return "", err
	}
	ek, err := scheme.EvaluationKeysFromBytes(pub.ID(), rlkBytes, gkBytes)
	if err != nil {
		return "", err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.entries[pub.ID()]; !exists {
		k.entries[pub.ID()] = keyEntry{pub: pub, eval: k.scheme.NewEvaluator(ek)}
	}
	return pub.ID(), nil
}

// Lookup returns the public key and a request-private evaluator for a
// registered key fingerprint.
func (k *Keyring) Lookup(keyID string) (*scheme.PublicKey, *scheme.Evaluator, error) {
	k.mu.RLock()
	entry, ok := k.entries[keyID]
	k.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: key %.8s is not registered", scheme.ErrValidation, keyID)
	}
	return entry.pub, entry.eval.ShallowCopy(), nil
}
