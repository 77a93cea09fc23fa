// Package server is the thin transport layer in front of the engines: it
// validates and unmarshals requests, resolves registered keys and
// datasets, and maps the engine error taxonomy onto HTTP responses. No
// cryptographic decisions are made here.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"he-analytics/internal/analytics"
	"he-analytics/internal/audit"
	"he-analytics/internal/datastore"
	"he-analytics/internal/inference"
	"he-analytics/internal/scheme"
)

// MaxCiphertextSize caps a single serialized ciphertext at 10 MiB to block
// oversized payloads before deserialization.
const MaxCiphertextSize = 10 * 1024 * 1024

// Server wires the engines to the HTTP surface.
type Server struct {
	scheme    *scheme.Context
	keyring   *Keyring
	aggregate *analytics.Engine
	inference *inference.Engine
	models    *inference.Registry
	datasets  datastore.Store
	audit     audit.Store
}

// New assembles a server from explicitly constructed dependencies.
func New(sc *scheme.Context, models *inference.Registry, datasets datastore.Store, auditStore audit.Store) *Server {
	return &Server{
		scheme:    sc,
		keyring:   NewKeyring(sc),
		aggregate: analytics.NewEngine(sc, auditStore),
		inference: inference.NewEngine(sc, models, auditStore),
		models:    models,
		datasets:  datasets,
		audit:     auditStore,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/api/params", s.handleParams).Methods("GET")
	r.HandleFunc("/api/keys", s.handleRegisterKeys).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/datasets", s.handleRegisterDataset).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/compute/operations", s.handleOperations).Methods("GET")
	r.HandleFunc("/api/compute/{operation}", s.handleCompute).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/model/info", s.handleModelInfo).Methods("GET")
	r.HandleFunc("/api/model/predict/{kind}", s.handlePredict).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/logs", s.handleLogs).Methods("GET")
	r.HandleFunc("/api/logs/stats", s.handleLogStats).Methods("GET")
	r.HandleFunc("/api/logs/operation/{operation}", s.handleLogs).Methods("GET")
	r.HandleFunc("/api/logs/report/csv", s.handleLogReport).Methods("GET")

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scheme.Info())
}

// errorBody is the stable error envelope: a taxonomy tag plus detail.
type errorBody struct {
	Error struct {
		Kind   string `json:"kind"`
		Detail string `json:"detail"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := scheme.Kind(err)
	status := http.StatusBadRequest
	switch kind {
	case "internal":
		if errors.Is(err, datastore.ErrNotFound) {
			kind = "not_found"
			status = http.StatusNotFound
		} else {
			status = http.StatusInternalServerError
		}
	}

	var body errorBody
	body.Error.Kind = kind
	body.Error.Detail = err.Error()
	writeJSON(w, status, body)
}
