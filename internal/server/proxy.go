package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/maauso/seedance-studio/internal/ark"
	"github.com/maauso/seedance-studio/internal/stitch"
)

// Generate handles POST /api/video/generate requests. It submits one task and
// returns the provider's payload with the formatted prompt added.
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !h.readBody(w, r, &req) {
		return
	}

	sub, err := h.ark.Submit(r.Context(), req.toArk())
	if err != nil {
		h.logger.Error("failed to submit generation task",
			slog.String("error", err.Error()),
			slog.String("trace_id", TraceIDFromContext(r.Context())),
		)
		writeProxyError(w, http.StatusInternalServerError, err.Error())
		return
	}

	payload, err := withFormattedPrompt(sub)
	if err != nil {
		h.logger.Error("failed to encode submission", slog.String("error", err.Error()))
		writeProxyError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info("generation task submitted",
		slog.String("task_id", sub.ID),
		slog.String("trace_id", TraceIDFromContext(r.Context())),
	)
	writeRaw(w, http.StatusOK, payload)
}

// withFormattedPrompt merges formattedPrompt into the provider payload.
func withFormattedPrompt(sub ark.Submission) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(sub.Raw) > 0 {
		if err := json.Unmarshal(sub.Raw, &fields); err != nil {
			return nil, err
		}
	}
	if _, ok := fields["id"]; !ok {
		id, _ := json.Marshal(sub.ID)
		fields["id"] = id
	}
	prompt, err := json.Marshal(sub.FormattedPrompt)
	if err != nil {
		return nil, err
	}
	fields["formattedPrompt"] = prompt
	return json.Marshal(fields)
}

// Status handles GET /api/video/status/{taskId} requests. It returns the
// provider's task payload untouched, including payloads whose fields have an
// unexpected shape.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskId")

	st, err := h.ark.Poll(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, ark.ErrMalformedPayload) && json.Valid(st.Raw) {
			h.logger.Warn("passing through unrecognized task payload",
				slog.String("task_id", taskID),
				slog.String("error", err.Error()),
			)
			writeRaw(w, http.StatusOK, st.Raw)
			return
		}
		h.logger.Error("failed to poll task",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
		writeProxyError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeRaw(w, http.StatusOK, st.Raw)
}

// Stitch handles POST /api/video/stitch requests.
func (h *Handlers) Stitch(w http.ResponseWriter, r *http.Request) {
	var req StitchRequest
	if !h.readBody(w, r, &req) {
		return
	}

	result, err := h.stitcher.Stitch(r.Context(), req.VideoURLs)
	if err != nil {
		var vErr *stitch.ValidationError
		if errors.As(err, &vErr) {
			writeProxyError(w, http.StatusBadRequest, vErr.Message)
			return
		}
		h.logger.Error("stitch failed",
			slog.Int("segments", len(req.VideoURLs)),
			slog.String("error", err.Error()),
			slog.String("trace_id", TraceIDFromContext(r.Context())),
		)
		writeProxyError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, StitchResponse{URL: result.URL})
}
