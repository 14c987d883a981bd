package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/prodshot/internal/version"
)

// maxRequestBytes bounds the JSON body of a run submission.
const maxRequestBytes = 64 << 10

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// createRunHandler starts a batch and answers before it finishes.
func (s *Server) createRunHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeErrorResponse(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	run, err := s.submit(req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errOutsideRoot) {
			status = http.StatusForbidden
		}
		s.writeErrorResponse(w, err.Error(), status)
		return
	}

	w.Header().Set("Location", "/runs/"+run.ID)
	s.writeJSON(w, http.StatusAccepted, RunCreatedResponse{
		ID:     run.ID,
		Status: RunQueued,
		URL:    "/runs/" + run.ID,
		Events: "/ws/runs/" + run.ID,
	})
}

// getRunHandler reports status, progress and, once done, the mapping.
func (s *Server) getRunHandler(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(r.PathValue("id"))
	if !ok {
		s.writeErrorResponse(w, "Run not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, run.Snapshot())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a JSON error body.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
