package api

import (
	"grimm.is/holdover/internal/audit"
	"grimm.is/holdover/internal/events"
	"grimm.is/holdover/internal/override"
)

// MessageRequest is the body of POST /api/message.
type MessageRequest struct {
	Action string `json:"action"`
}

// ActivateRequest is the body of POST /api/activate.
type ActivateRequest struct {
	URL string `json:"url"`
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	override.Status
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// AuditResponse is returned by GET /api/audit, newest first.
type AuditResponse struct {
	Events []audit.Event `json:"events"`
}

// HistoryResponse is returned by GET /api/history, newest last.
type HistoryResponse struct {
	Events []events.Event `json:"events"`
}
