package client

import "time"

// ServiceStatus mirrors the wire shape of one service entry from the
// control API's status endpoint.
type ServiceStatus struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	PID       int       `json:"pid,omitempty"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at,omitempty"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	ExitError string    `json:"exit_error,omitempty"`
	LogPath   string    `json:"log_path,omitempty"`
}

// HealthzResponse is the orchestrator's own liveness report.
type HealthzResponse struct {
	Status   string `json:"status"`
	Services int    `json:"services"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
