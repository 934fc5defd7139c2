package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bernardzulu23/phasesync/internal/phase"
	"github.com/bernardzulu23/phasesync/internal/store"
	"github.com/bernardzulu23/phasesync/internal/sync"
)

// Error codes returned in the "error" field of error bodies.
const (
	codeBadRequest  = "bad_request"
	codeValidation  = "validation_failed"
	codeUnavailable = "unavailable"
	codeInternal    = "internal_error"
)

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps coordinator errors onto status codes. Internal errors
// omit their description.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sync.ErrMalformed):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: codeBadRequest, Description: err.Error()})
	case errors.Is(err, sync.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: codeValidation, Description: err.Error()})
	case errors.Is(err, sync.ErrClosed):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: codeUnavailable})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: codeInternal})
	}
}

// HandleHealth handles GET /healthz.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleSync handles POST /v1/sync.
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: codeBadRequest, Description: "reading body failed"})
		return
	}

	req, err := sync.DecodeRequest(body)
	if err != nil {
		writeError(w, err)
		return
	}

	id, err := h.coord.Submit(req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

// HandleForce handles POST /v1/users/{userID}/force. The optional phase
// query parameter scopes the refresh.
func (h *Handler) HandleForce(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	p := phase.Phase(r.URL.Query().Get("phase"))

	if err := h.coord.ForceSyncUser(r.Context(), userID, p); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, h.coord.GetSyncStats())
}

// HandleStats handles GET /v1/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.coord.GetSyncStats())
}

// HandleRecords handles GET /v1/users/{userID}/records.
func (h *Handler) HandleRecords(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	recs, err := h.records.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("listing records failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)

		return
	}

	if recs == nil {
		recs = []store.Record{}
	}

	writeJSON(w, http.StatusOK, recs)
}
