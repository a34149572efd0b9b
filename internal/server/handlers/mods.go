package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/go-chi/chi/v5"
	"github.com/modlens/modlens/internal/core"
	"github.com/modlens/modlens/internal/core/engine"
	apperrors "github.com/modlens/modlens/internal/errors"
)

// ModResponse wraps a cache record in the standard success envelope.
type ModResponse struct {
	Success bool            `json:"success"`
	Data    *core.ModRecord `json:"data"`
}

// ModsHandler serves cached mod metadata lookups.
type ModsHandler struct {
	controller *engine.SyncController
}

// NewModsHandler creates a handler bound to the given controller.
func NewModsHandler(controller *engine.SyncController) *ModsHandler {
	return &ModsHandler{controller: controller}
}

// Get handles GET /mods/{key}. It returns whatever the cache holds
// immediately — stale data included — and schedules a refresh behind the
// scenes when needed. A key never seen before answers 202 with a pending
// placeholder rather than blocking on the upstream round trip.
func (h *ModsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.controller == nil {
		respondWithError(w, r, errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "background fetch engine not initialized"))
		return
	}

	key := chi.URLParam(r, "key")
	if key == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("mod key is required"))
		return
	}

	record := h.controller.GetOrRefresh(r.Context(), key)
	if record == nil {
		respondWithError(w, r, apperrors.NewInternalError("unable to resolve mod record"))
		return
	}

	status := http.StatusOK
	if record.Payload == nil && record.FetchState == core.FetchStatePending {
		status = http.StatusAccepted
	}

	response := ModResponse{
		Success: true,
		Data:    record,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}
