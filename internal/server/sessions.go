package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/maauso/seedance-studio/internal/session"
)

// CreateSession handles POST /api/sessions requests.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Create(r.Context())
	if err != nil {
		h.logger.Error("failed to create session", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create session", "SESSION_CREATION_FAILED")
		return
	}

	writeJSON(w, http.StatusCreated, SessionResponse{
		ID:     s.ID(),
		Status: string(s.Status()),
	})
}

// GetSession handles GET /api/sessions/{id} requests.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.findSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// StartFlow handles POST /api/sessions/{id}/generate requests.
func (h *Handlers) StartFlow(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req StartFlowRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.sessions.Start(r.Context(), sessionID, req.toInput())
	switch {
	case err == nil:
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
		return
	case errors.Is(err, session.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	case errors.Is(err, session.ErrFlowInProgress):
		writeError(w, http.StatusConflict, err.Error(), "FLOW_IN_PROGRESS")
		return
	default:
		h.logger.Error("failed to start flow",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to start flow", "FLOW_START_FAILED")
		return
	}

	h.logger.Info("flow started",
		slog.String("session_id", sessionID),
		slog.String("mode", req.Mode),
		slog.String("trace_id", TraceIDFromContext(r.Context())),
	)

	s, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusAccepted, s.Snapshot())
}

// ResetSession handles POST /api/sessions/{id}/reset requests.
func (h *Handlers) ResetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sessions.Reset(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// DeleteSession handles DELETE /api/sessions/{id} requests.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) findSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeSessionError(w, err)
		return nil, false
	}
	return s, true
}

func (h *Handlers) writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
		return
	}
	h.logger.Error("session operation failed", slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, err.Error(), "SESSION_FAILED")
}
