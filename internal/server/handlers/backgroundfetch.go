package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/modlens/modlens/internal/core"
	"github.com/modlens/modlens/internal/core/engine"
	"github.com/modlens/modlens/internal/metrics"
)

// StatusResponse wraps the engine status in the standard success envelope.
type StatusResponse struct {
	Success bool              `json:"success"`
	Data    core.EngineStatus `json:"data"`
}

// ActionRequest is the body accepted by POST /background-fetch.
type ActionRequest struct {
	Action string `json:"action"`
}

// ActionResponse is returned after a successful start/stop.
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ActionErrorResponse is returned for an unrecognized action.
type ActionErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// BackgroundFetchHandler serves the background fetch control surface.
// The controller is injected by the composition root rather than looked
// up through a global so each server owns its own engine lifecycle.
type BackgroundFetchHandler struct {
	controller *engine.SyncController
}

// NewBackgroundFetchHandler creates a handler bound to the given controller.
func NewBackgroundFetchHandler(controller *engine.SyncController) *BackgroundFetchHandler {
	return &BackgroundFetchHandler{controller: controller}
}

// Status handles GET /background-fetch
func (h *BackgroundFetchHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.controller == nil {
		respondWithError(w, r, errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "background fetch engine not initialized"))
		return
	}

	status := h.controller.Status()
	metrics.SetTokenBucketLevel(status.TokenBucket.Tokens)

	response := StatusResponse{
		Success: true,
		Data:    status,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// Control handles POST /background-fetch
func (h *BackgroundFetchHandler) Control(w http.ResponseWriter, r *http.Request) {
	if h.controller == nil {
		respondWithError(w, r, errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "background fetch engine not initialized"))
		return
	}

	var req ActionRequest
	if r.Body != nil {
		// A malformed body falls through with an empty action and is
		// rejected by the same invalid-action path below.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	switch req.Action {
	case "start":
		h.controller.Start()
		writeActionResponse(w, "Background fetch started")
	case "stop":
		h.controller.Stop()
		writeActionResponse(w, "Background fetch stopped")
	default:
		response := ActionErrorResponse{
			Success: false,
			Error:   "Invalid action. Use \"start\" or \"stop\".",
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// MethodNotAllowed answers unsupported methods on /background-fetch with an Allow header.
func (h *BackgroundFetchHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "GET, POST")
	response := ActionErrorResponse{
		Success: false,
		Error:   "Method not allowed. Use GET or POST.",
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	_ = json.NewEncoder(w).Encode(response)
}

func writeActionResponse(w http.ResponseWriter, message string) {
	response := ActionResponse{
		Success: true,
		Message: message,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
