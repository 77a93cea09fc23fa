// Package inference evaluates pre-trained linear and logistic models over
// encrypted feature vectors. Model weights are server-side plaintext; the
// features never leave ciphertext form. The logistic kind returns the
// encrypted linear score and leaves the sigmoid to the secret-key holder
// after decryption (see PredictionResult.PostProcess).
package inference

import (
	"encoding/json"
	"fmt"
	"os"

	"he-analytics/internal/scheme"
)

// Kind identifies the model family.
type Kind string

const (
	KindLinear   Kind = "linear"
	KindLogistic Kind = "logistic"
)

// ParseKind validates a model kind from a request.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindLinear, KindLogistic:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: unknown model kind %q", scheme.ErrValidation, s)
	}
}

// Model is an immutable pre-trained linear combination. RequiredFeatures
// fixes both the feature names and their slot order; the schema gate
// rejects any request that declares a different set.
type Model struct {
	Name             string    `json:"name"`
	Kind             Kind      `json:"kind"`
	Version          string    `json:"version"`
	Weights          []float64 `json:"weights"`
	Bias             float64   `json:"bias"`
	RequiredFeatures []string  `json:"required_features"`
	Description      string    `json:"description,omitempty"`
}

func (m *Model) validate() error {
	if m.Name == "" {
		return fmt.Errorf("model without a name")
	}
	if m.Kind != KindLinear && m.Kind != KindLogistic {
		return fmt.Errorf("model %s: unknown kind %q", m.Name, m.Kind)
	}
	if len(m.Weights) == 0 {
		return fmt.Errorf("model %s: no weights", m.Name)
	}
	if len(m.Weights) != len(m.RequiredFeatures) {
		return fmt.Errorf("model %s: %d weights for %d features", m.Name, len(m.Weights), len(m.RequiredFeatures))
	}
	return nil
}

// Registry holds the models loaded at process start. It is read-only for
// the life of the process and safe for concurrent use.
type Registry struct {
	byKind map[Kind]*Model
	models []*Model
}

// NewRegistry builds a registry from a fixed model list.
func NewRegistry(models []*Model) (*Registry, error) {
	r := &Registry{byKind: make(map[Kind]*Model)}
	for _, m := range models {
		if err := m.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byKind[m.Kind]; dup {
			return nil, fmt.Errorf("duplicate model for kind %q", m.Kind)
		}
		r.byKind[m.Kind] = m
		r.models = append(r.models, m)
	}
	return r, nil
}

// DefaultRegistry returns the built-in demonstration models: a logistic
// disease-risk classifier and a linear score predictor over the same
// clinical features.
func DefaultRegistry() *Registry {
	r, err := NewRegistry([]*Model{
		{
			Name:             "disease-risk",
			Kind:             KindLogistic,
			Version:          "1",
			Weights:          []float64{0.2, -0.1, 0.3},
			Bias:             -2.5,
			RequiredFeatures: []string{"age", "blood_pressure", "cholesterol"},
			Description:      "Binary disease-risk classification; sigmoid applied by the caller after decryption",
		},
		{
			Name:             "health-score",
			Kind:             KindLinear,
			Version:          "1",
			Weights:          []float64{0.5, 0.3, 0.2},
			Bias:             10.0,
			RequiredFeatures: []string{"age", "blood_pressure", "cholesterol"},
			Description:      "Continuous health-score regression",
		},
	})
	if err != nil {
		panic(err) // built-ins are static; a failure here is a programming error
	}
	return r
}

// LoadRegistry reads a model file: {"models": [...]}. The file is loaded
// once at startup; models are never learned or reloaded at request time.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	var doc struct {
		Models []*Model `json:"models"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse model file %s: %w", path, err)
	}
	if len(doc.Models) == 0 {
		return nil, fmt.Errorf("model file %s declares no models", path)
	}
	return NewRegistry(doc.Models)
}

// ByKind returns the model registered for a kind.
func (r *Registry) ByKind(k Kind) (*Model, bool) {
	m, ok := r.byKind[k]
	return m, ok
}

// Models lists all registered models.
func (r *Registry) Models() []*Model { return r.models }
