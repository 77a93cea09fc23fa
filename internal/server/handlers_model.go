package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"he-analytics/internal/inference"
	"he-analytics/internal/scheme"
)

type predictRequest struct {
	KeyID             string   `json:"key_id"`
	EncryptedFeatures string   `json:"encrypted_features"`
	FeatureNames      []string `json:"feature_names"`
}

type predictResponse struct {
	ModelName           string `json:"model_name"`
	ModelVersion        string `json:"model_version"`
	Kind                string `json:"kind"`
	EncryptedPrediction string `json:"encrypted_prediction"`
	PostProcess         string `json:"post_process"`
	Timestamp           int64  `json:"timestamp"`
	Status              string `json:"status"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	kind, err := inference.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		writeError(w, err)
		return
	}

	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", scheme.ErrValidation, err))
		return
	}

	_, eval, err := s.keyring.Lookup(req.KeyID)
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := decodePayload(req.EncryptedFeatures, "encrypted_features")
	if err != nil {
		writeError(w, err)
		return
	}
	if len(req.FeatureNames) == 0 {
		writeError(w, fmt.Errorf("%w: no feature names declared", scheme.ErrValidation))
		return
	}
	features, err := s.scheme.CiphertextFromBytes(data, eval.KeyID(), len(req.FeatureNames))
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.inference.Predict(r.Context(), eval, features, req.FeatureNames, kind)
	if err != nil {
		writeError(w, err)
		return
	}

	resultBytes, err := result.Ciphertext.Bytes()
	if err != nil {
		writeError(w, fmt.Errorf("marshal prediction: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, predictResponse{
		ModelName:           result.ModelName,
		ModelVersion:        result.ModelVersion,
		Kind:                string(result.Kind),
		EncryptedPrediction: base64.StdEncoding.EncodeToString(resultBytes),
		PostProcess:         result.PostProcess,
		Timestamp:           time.Now().Unix(),
		Status:              "success",
	})
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	type modelInfo struct {
		Name        string   `json:"name"`
		Kind        string   `json:"kind"`
		Version     string   `json:"version"`
		Features    []string `json:"input_features"`
		PostProcess string   `json:"post_process"`
		Description string   `json:"description,omitempty"`
	}

	models := s.models.Models()
	infos := make([]modelInfo, 0, len(models))
	for _, m := range models {
		post := inference.PostProcessNone
		if m.Kind == inference.KindLogistic {
			post = inference.PostProcessSigmoid
		}
		infos = append(infos, modelInfo{
			Name:        m.Name,
			Kind:        string(m.Kind),
			Version:     m.Version,
			Features:    m.RequiredFeatures,
			PostProcess: post,
			Description: m.Description,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"models":            infos,
		"total_models":      len(infos),
		"encryption_scheme": "CKKS",
	})
}
