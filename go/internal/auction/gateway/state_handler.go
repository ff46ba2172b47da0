package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/mcdev12/loadauction/go/internal/auction/room"
	"github.com/rs/zerolog/log"
)

// StateHandler serves read-only room state over plain HTTP, for clients that want
// the current snapshot without opening a websocket.
type StateHandler struct {
	registry *room.Registry
}

func NewStateHandler(registry *room.Registry) *StateHandler {
	return &StateHandler{registry: registry}
}

// HandleGetLoadState handles GET /api/loads/{loadId}/state
func (h *StateHandler) HandleGetLoadState(w http.ResponseWriter, r *http.Request) {
	loadID := r.PathValue("loadId")
	if loadID == "" {
		http.Error(w, "load id is required", http.StatusBadRequest)
		return
	}

	rm, ok := h.registry.Get(loadID)
	if !ok {
		http.Error(w, "no auction for load", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rm.State()); err != nil {
		log.Error().Err(err).Str("load_id", loadID).Msg("failed to encode load state response")
	}
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/loads/{loadId}/state", h.HandleGetLoadState)
}
