package inference

import (
	"context"
	"fmt"
	"log"
	"time"

	"he-analytics/internal/audit"
	"he-analytics/internal/scheme"
)

// PostProcessSigmoid marks predictions whose linear score still needs the
// sigmoid applied by the secret-key holder after decryption. Evaluating
// the sigmoid homomorphically would need a polynomial approximation deeper
// than the one-multiplication budget, so it is a caller obligation of the
// logistic kind, not a server step.
const (
	PostProcessNone    = "none"
	PostProcessSigmoid = "sigmoid_after_decrypt"
)

// PredictionResult carries the encrypted prediction. For the linear kind
// the ciphertext already encodes the final value (slot 0); for the
// logistic kind it encodes the linear score and PostProcess tells the
// caller what remains to be done after decryption.
type PredictionResult struct {
	ModelName    string
	ModelVersion string
	Kind         Kind
	PostProcess  string
	Ciphertext   *scheme.Ciphertext
}

// Engine evaluates model predictions over encrypted feature vectors.
// Stateless across calls; the registry is immutable process configuration.
type Engine struct {
	scheme   *scheme.Context
	registry *Registry
	audit    audit.Store
}

// NewEngine builds an inference engine over the loaded model registry.
func NewEngine(sc *scheme.Context, registry *Registry, sink audit.Store) *Engine {
	return &Engine{scheme: sc, registry: registry, audit: sink}
}

// Predict evaluates the model of the requested kind on an encrypted
// feature vector whose slots correspond 1:1 to the declared feature names.
// The schema gate rejects any declaration that is not exactly the model's
// required feature list, in order. Exactly one audit record is emitted
// per call; an audit append failure is logged, never propagated.
func (e *Engine) Predict(ctx context.Context, eval *scheme.Evaluator, features *scheme.Ciphertext, featureNames []string, kind Kind) (*PredictionResult, error) {
	started := time.Now()
	res, err := e.predict(eval, features, featureNames, kind)
	e.record(ctx, started, kind, res, err)
	return res, err
}

func (e *Engine) predict(eval *scheme.Evaluator, features *scheme.Ciphertext, featureNames []string, kind Kind) (*PredictionResult, error) {
	model, ok := e.registry.ByKind(kind)
	if !ok {
		return nil, fmt.Errorf("%w: no model registered for kind %q", scheme.ErrValidation, kind)
	}
	if err := gate(featureNames, model.RequiredFeatures); err != nil {
		return nil, err
	}
	if features == nil {
		return nil, fmt.Errorf("%w: no encrypted feature vector", scheme.ErrValidation)
	}
	if features.Slots() != len(model.RequiredFeatures) {
		return nil, fmt.Errorf("%w: feature vector packs %d slots, model %s requires %d",
			scheme.ErrSchemaMismatch, features.Slots(), model.Name, len(model.RequiredFeatures))
	}

	// w·x + b, entirely depth-free: one plaintext weight-vector multiply,
	// a rotate-and-add slot fold, and a plaintext bias addition.
	weighted, err := eval.MulPlain(features, model.Weights)
	if err != nil {
		return nil, err
	}
	score, err := eval.SumSlots(weighted)
	if err != nil {
		return nil, err
	}
	score, err = eval.AddConst(score, model.Bias)
	if err != nil {
		return nil, err
	}

	post := PostProcessNone
	if model.Kind == KindLogistic {
		post = PostProcessSigmoid
	}
	return &PredictionResult{
		ModelName:    model.Name,
		ModelVersion: model.Version,
		Kind:         model.Kind,
		PostProcess:  post,
		Ciphertext:   score,
	}, nil
}

// gate enforces exact feature-schema equality, names and order both. This
// is what keeps a medical-feature model from being applied to, say, a
// financial-feature vector.
func gate(declared, required []string) error {
	if len(declared) != len(required) {
		return fmt.Errorf("%w: %d features declared, model requires %d",
			scheme.ErrSchemaMismatch, len(declared), len(required))
	}
	for i := range required {
		if declared[i] != required[i] {
			return fmt.Errorf("%w: feature %d is %q, model requires %q",
				scheme.ErrSchemaMismatch, i, declared[i], required[i])
		}
	}
	return nil
}

func (e *Engine) record(ctx context.Context, started time.Time, kind Kind, res *PredictionResult, opErr error) {
	rec := audit.Record{
		Timestamp: started,
		Operation: "predict_" + string(kind),
		Kind:      audit.KindPrediction,
		Status:    audit.StatusSuccess,
		Duration:  time.Since(started),
	}
	if res != nil {
		rec.Metadata = map[string]string{"model": res.ModelName, "version": res.ModelVersion}
	}
	if opErr != nil {
		rec.Status = audit.StatusFailure
		rec.Reason = fmt.Sprintf("%s: %v", scheme.Kind(opErr), opErr)
	}
	if err := e.audit.Append(ctx, rec); err != nil {
		log.Printf("audit append failed for predict_%s: %v", kind, err)
	}
}
