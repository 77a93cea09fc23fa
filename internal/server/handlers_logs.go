package server

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"he-analytics/internal/audit"
)

const maxLogPageSize = 1000

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	f := audit.Filter{
		Operation: mux.Vars(r)["operation"],
		Limit:     queryInt(r, "limit", 100, maxLogPageSize),
		Offset:    queryInt(r, "offset", 0, 1<<30),
	}

	records, err := s.audit.List(r.Context(), f)
	if err != nil {
		writeError(w, fmt.Errorf("list audit log: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleLogStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.audit.Stats(r.Context())
	if err != nil {
		writeError(w, fmt.Errorf("audit stats: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleLogReport streams the audit log as CSV, optionally filtered by the
// operation query parameter.
func (s *Server) handleLogReport(w http.ResponseWriter, r *http.Request) {
	f := audit.Filter{
		Operation: r.URL.Query().Get("operation"),
		Limit:     queryInt(r, "limit", maxLogPageSize, 10000),
	}

	records, err := s.audit.List(r.Context(), f)
	if err != nil {
		writeError(w, fmt.Errorf("list audit log: %w", err))
		return
	}

	filename := fmt.Sprintf("audit_report_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "timestamp", "operation", "operation_type", "status", "reason", "duration_ms"})
	for _, rec := range records {
		_ = cw.Write([]string{
			strconv.FormatInt(rec.ID, 10),
			rec.Timestamp.Format(time.RFC3339Nano),
			rec.Operation,
			rec.Kind,
			string(rec.Status),
			rec.Reason,
			strconv.FormatFloat(float64(rec.Duration.Microseconds())/1000, 'f', 3, 64),
		})
	}
	cw.Flush()
}

func queryInt(r *http.Request, name string, def, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
