package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mattjoyce/tilegw/internal/pool"
)

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		ProjectState:  string(s.project.State()),
	})
}

// handleStatus serves the /status/ project route.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Project:    s.config.ProjectName,
		State:      string(s.project.State()),
		Generation: s.project.Generation(),
		Pools:      s.project.PoolStats(),
		Pending:    s.project.Notifications().Len(),
	}
	if cfg := s.project.Config(); cfg != nil {
		resp.Project = cfg.Name
		resp.Fingerprint = cfg.Fingerprint
	}
	if resp.Pools == nil {
		resp.Pools = []pool.Stats{}
	}
	if err := s.project.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
