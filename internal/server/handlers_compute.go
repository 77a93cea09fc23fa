package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"he-analytics/internal/analytics"
	"he-analytics/internal/datastore"
	"he-analytics/internal/scheme"
)

type registerKeysRequest struct {
	PublicKey          string   `json:"public_key"`
	RelinearizationKey string   `json:"relinearization_key"`
	GaloisKeys         []string `json:"galois_keys"`
}

type registerKeysResponse struct {
	KeyID string `json:"key_id"`
}

func (s *Server) handleRegisterKeys(w http.ResponseWriter, r *http.Request) {
	var req registerKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", scheme.ErrValidation, err))
		return
	}

	pubBytes, err := decodePayload(req.PublicKey, "public_key")
	if err != nil {
		writeError(w, err)
		return
	}
	rlkBytes, err := decodePayload(req.RelinearizationKey, "relinearization_key")
	if err != nil {
		writeError(w, err)
		return
	}
	gkBytes := make([][]byte, len(req.GaloisKeys))
	for i, gk := range req.GaloisKeys {
		if gkBytes[i], err = decodePayload(gk, fmt.Sprintf("galois_keys[%d]", i)); err != nil {
			writeError(w, err)
			return
		}
	}

	keyID, err := s.keyring.Register(pubBytes, rlkBytes, gkBytes)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Printf("registered key %.8s with %d rotation keys", keyID, len(gkBytes))
	writeJSON(w, http.StatusOK, registerKeysResponse{KeyID: keyID})
}

type registerDatasetRequest struct {
	KeyID       string   `json:"key_id"`
	ColumnNames []string `json:"column_names"`
	Rows        []string `json:"rows"`
}

type registerDatasetResponse struct {
	DatasetID string `json:"dataset_id"`
	RowCount  int    `json:"row_count"`
}

func (s *Server) handleRegisterDataset(w http.ResponseWriter, r *http.Request) {
	var req registerDatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", scheme.ErrValidation, err))
		return
	}
	if len(req.Rows) == 0 {
		writeError(w, fmt.Errorf("%w: dataset has no rows", scheme.ErrValidation))
		return
	}

	// Rows are validated against the registered key and column layout
	// before storage, so compute calls can trust resolved datasets.
	pub, _, err := s.keyring.Lookup(req.KeyID)
	if err != nil {
		writeError(w, err)
		return
	}
	rows := make([][]byte, len(req.Rows))
	for i, b64 := range req.Rows {
		data, err := decodePayload(b64, fmt.Sprintf("rows[%d]", i))
		if err != nil {
			writeError(w, err)
			return
		}
		if _, err := s.scheme.CiphertextFromBytes(data, pub.ID(), len(req.ColumnNames)); err != nil {
			writeError(w, err)
			return
		}
		rows[i] = data
	}

	id, err := s.datasets.Put(r.Context(), datastore.Record{
		KeyID:       pub.ID(),
		ColumnNames: req.ColumnNames,
		Rows:        rows,
	})
	if err != nil {
		writeError(w, fmt.Errorf("store dataset: %w", err))
		return
	}

	log.Printf("registered dataset %.8s (%d rows, %d columns)", id, len(rows), len(req.ColumnNames))
	writeJSON(w, http.StatusOK, registerDatasetResponse{DatasetID: string(id), RowCount: len(rows)})
}

type computeRequest struct {
	KeyID       string   `json:"key_id"`
	DatasetID   string   `json:"dataset_id,omitempty"`
	Rows        []string `json:"encrypted_rows,omitempty"`
	ColumnNames []string `json:"column_names,omitempty"`
	ColumnIndex *int     `json:"column_index,omitempty"`
	ColumnName  string   `json:"column_name,omitempty"`
}

type computeResponse struct {
	Operation       string `json:"operation"`
	EncryptedResult string `json:"encrypted_result"`
	ColumnIndex     int    `json:"column_index"`
	ColumnName      string `json:"column_name,omitempty"`
	RowCount        int    `json:"row_count"`
	Timestamp       int64  `json:"timestamp"`
	Status          string `json:"status"`
}

func (s *Server) handleCompute(w http.ResponseWriter, r *http.Request) {
	op, err := analytics.ParseOperation(mux.Vars(r)["operation"])
	if err != nil {
		writeError(w, err)
		return
	}

	var req computeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", scheme.ErrValidation, err))
		return
	}

	pub, eval, err := s.keyring.Lookup(req.KeyID)
	if err != nil {
		writeError(w, err)
		return
	}

	ds, err := s.resolveDataset(r, &req, pub)
	if err != nil {
		writeError(w, err)
		return
	}

	sel := analytics.ColumnSelector{Index: req.ColumnIndex, Name: req.ColumnName}
	result, err := s.aggregate.ComputeAggregate(r.Context(), eval, ds, sel, op)
	if err != nil {
		writeError(w, err)
		return
	}

	resultBytes, err := result.Ciphertext.Bytes()
	if err != nil {
		writeError(w, fmt.Errorf("marshal result: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, computeResponse{
		Operation:       string(op),
		EncryptedResult: base64.StdEncoding.EncodeToString(resultBytes),
		ColumnIndex:     result.Column,
		ColumnName:      result.ColumnName,
		RowCount:        result.RowCount,
		Timestamp:       time.Now().Unix(),
		Status:          "success",
	})
}

// resolveDataset builds the engine's dataset either from inline rows or
// from a previously registered dataset handle.
func (s *Server) resolveDataset(r *http.Request, req *computeRequest, pub *scheme.PublicKey) (*analytics.Dataset, error) {
	columnNames := req.ColumnNames
	var rawRows [][]byte

	if req.DatasetID != "" {
		rec, err := s.datasets.Get(r.Context(), datastore.ID(req.DatasetID))
		if err != nil {
			return nil, err
		}
		if rec.KeyID != pub.ID() {
			return nil, fmt.Errorf("%w: dataset %.8s registered under key %.8s",
				scheme.ErrKeyMismatch, req.DatasetID, rec.KeyID)
		}
		columnNames = rec.ColumnNames
		rawRows = rec.Rows
	} else {
		rawRows = make([][]byte, len(req.Rows))
		for i, b64 := range req.Rows {
			data, err := decodePayload(b64, fmt.Sprintf("encrypted_rows[%d]", i))
			if err != nil {
				return nil, err
			}
			rawRows[i] = data
		}
	}

	if len(rawRows) == 0 {
		return nil, fmt.Errorf("%w: no encrypted rows supplied", scheme.ErrValidation)
	}

	rows := make([]*scheme.Ciphertext, len(rawRows))
	for i, data := range rawRows {
		ct, err := s.scheme.CiphertextFromBytes(data, pub.ID(), len(columnNames))
		if err != nil {
			return nil, err
		}
		rows[i] = ct
	}

	return &analytics.Dataset{
		Rows:        rows,
		PublicKey:   pub,
		ColumnNames: columnNames,
		RowCount:    len(rows),
	}, nil
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	type opInfo struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Endpoint    string `json:"endpoint"`
	}
	ops := []opInfo{
		{"sum", "Column-wise sum across all encrypted rows", "/api/compute/sum"},
		{"average", "Column-wise mean across all encrypted rows", "/api/compute/average"},
		{"variance", "Column-wise population variance across all encrypted rows", "/api/compute/variance"},
		{"count", "Row count, re-encoded under the dataset's public key", "/api/compute/count"},
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"operations":       ops,
		"total_operations": len(ops),
	})
}

// decodePayload base64-decodes a wire field, enforcing the size cap both
// before and after decoding.
func decodePayload(b64, field string) ([]byte, error) {
	if b64 == "" {
		return nil, fmt.Errorf("%w: missing %s", scheme.ErrValidation, field)
	}
	if len(b64) > MaxCiphertextSize {
		return nil, fmt.Errorf("%w: %s exceeds maximum size", scheme.ErrValidation, field)
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not valid base64: %v", scheme.ErrValidation, field, err)
	}
	if len(data) > MaxCiphertextSize {
		return nil, fmt.Errorf("%w: %s exceeds maximum size", scheme.ErrValidation, field)
	}
	return data, nil
}
