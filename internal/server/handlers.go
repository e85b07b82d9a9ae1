package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/maauso/seedance-studio/internal/ark"
	"github.com/maauso/seedance-studio/internal/session"
	"github.com/maauso/seedance-studio/internal/stitch"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	ark       ark.Client
	stitcher  stitch.Stitcher
	sessions  *session.Controller
	validator *validator.Validate
	logger    *slog.Logger
	upgrader  websocket.Upgrader

	// eventWriteTimeout bounds each websocket write.
	eventWriteTimeout time.Duration
	// eventPingInterval is how often idle event streams are pinged.
	eventPingInterval time.Duration
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAllowedOrigins restricts which origins may open event websockets.
// "*" allows any origin.
func WithAllowedOrigins(origins []string) HandlerOption {
	return func(h *Handlers) {
		if slices.Contains(origins, "*") {
			h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
			return
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(origins, origin)
		}
	}
}

// WithEventTimings sets the websocket write timeout and ping interval.
func WithEventTimings(writeTimeout, pingInterval time.Duration) HandlerOption {
	return func(h *Handlers) {
		h.eventWriteTimeout = writeTimeout
		h.eventPingInterval = pingInterval
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client ark.Client, stitcher stitch.Stitcher, sessions *session.Controller, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		ark:               client,
		stitcher:          stitcher,
		sessions:          sessions,
		validator:         validator.New(),
		logger:            logger,
		eventWriteTimeout: 10 * time.Second,
		eventPingInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// decode reads and validates a JSON body. It writes the error response and
// returns false on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
			slog.String("trace_id", TraceIDFromContext(r.Context())),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
			slog.String("trace_id", TraceIDFromContext(r.Context())),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// readBody decodes a proxy request body without validating it. An empty body
// decodes as the zero value. It writes a 500 and returns false on failure.
func (h *Handlers) readBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
			slog.String("trace_id", TraceIDFromContext(r.Context())),
		)
		writeProxyError(w, http.StatusInternalServerError, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeRaw writes an already-encoded JSON payload.
func writeRaw(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		slog.Error("failed to write response", slog.String("error", err.Error()))
	}
}

// writeProxyError writes the bare {error} body used by the /api/video endpoints.
func writeProxyError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
