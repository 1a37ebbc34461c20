package api

import (
	"github.com/alicas/linecall-agent/internal/render"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

// StatusResponse is the render view plus backend reachability.
type StatusResponse struct {
	render.View
	Backend BackendStatusResponse `json:"backend"`
}

type BackendStatusResponse struct {
	URL       string `json:"url"`
	Reachable bool   `json:"reachable"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

type SelectPathRequest struct {
	Path string `json:"path"`
}

// OptionsRequest fields left empty keep their current value.
type OptionsRequest struct {
	Mode     string `json:"mode,omitempty"`
	ShotType string `json:"shot_type,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
