package api

import (
	"github.com/mattjoyce/tilegw/internal/pool"
)

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ReloadResponse is returned by /reload/ once new pools are live.
type ReloadResponse struct {
	Reloaded   bool   `json:"reloaded"`
	Generation string `json:"generation,omitempty"`
}

// StatusResponse is returned by the /status/ project route.
type StatusResponse struct {
	Project     string       `json:"project"`
	State       string       `json:"state"`
	Generation  string       `json:"generation,omitempty"`
	Fingerprint string       `json:"fingerprint,omitempty"`
	Pools       []pool.Stats `json:"pools"`
	Pending     int          `json:"pending"`
	LastError   string       `json:"last_error,omitempty"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ProjectState  string `json:"project_state"`
}
