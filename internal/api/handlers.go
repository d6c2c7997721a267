package api

import (
	"errors"
	"net/http"
	"time"

	"grimm.is/holdover/internal/audit"
	"grimm.is/holdover/internal/brand"
	"grimm.is/holdover/internal/logging"
	"grimm.is/holdover/internal/override"
)

const (
	defaultHistoryLimit = 50
	defaultLogLimit     = 100
)

// handleMessage runs change or revert. The reply is the fixed acknowledgement
// whatever the outcome, including for actions it does not know.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid message", err.Error())
		return
	}

	outcome, err := s.commands.Dispatch(r.Context(), req.Action)
	switch {
	case errors.Is(err, override.ErrUnknownCommand):
		logging.APILog("warn", "ignored message with action %q", req.Action)
	case err != nil:
		logging.APILog("error", "%s: %s: %v", req.Action, outcome, err)
	default:
		logging.APILog("info", "%s: %s", req.Action, outcome)
	}

	WriteJSON(w, http.StatusOK, override.OK)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	if s.activator == nil {
		WriteError(w, http.StatusNotFound, "activation is not configured")
		return
	}

	var req ActivateRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid activation", err.Error())
		return
	}
	if req.URL == "" {
		WriteError(w, http.StatusBadRequest, "url is required")
		return
	}

	act, err := s.activator.Activate(r.Context(), req.URL)
	if err != nil {
		logging.APILog("error", "activate %s: %s: %v", req.URL, act.Outcome, err)
	}
	WriteJSON(w, http.StatusOK, act)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, StatusResponse{
		Status:  s.commands.Status(r.Context()),
		Version: brand.Version,
		Uptime:  s.Uptime().Round(time.Second).String(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		WriteError(w, http.StatusServiceUnavailable, "history is not enabled")
		return
	}
	WriteJSON(w, http.StatusOK, HistoryResponse{
		Events: s.journal.Recent(queryInt(r, "limit", defaultHistoryLimit)),
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		WriteError(w, http.StatusServiceUnavailable, "audit trail is not enabled")
		return
	}
	q := audit.Query{
		Op:      r.URL.Query().Get("op"),
		Outcome: r.URL.Query().Get("outcome"),
		Limit:   queryInt(r, "limit", defaultHistoryLimit),
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		q.Since = t
	}

	evts, err := s.audit.Query(r.Context(), q)
	if err != nil {
		s.logger.Error("audit query failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	if evts == nil {
		evts = []audit.Event{}
	}
	WriteJSON(w, http.StatusOK, AuditResponse{Events: evts})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultLogLimit)
	if limit <= 0 {
		limit = defaultLogLimit
	}
	buf := logging.GetAppLogBuffer()

	entries := buf.GetLast(limit)
	if source := r.URL.Query().Get("source"); source != "" {
		entries = buf.GetBySource(source, limit)
	}
	if entries == nil {
		entries = []logging.AppLogEntry{}
	}
	WriteJSON(w, http.StatusOK, entries)
}
