package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles websocket upgrade requests
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleConnection upgrades the request. Which load the client bids on is
// decided by its first join message, not by the URL.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r); err != nil {
		// the upgrader has already written an HTTP error response
		log.Warn().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleRoot accepts websocket upgrades on the bare root so clients that dial the
// host without a path keep working. Anything else under / is not found.
func (h *WebSocketHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" && websocket.IsWebSocketUpgrade(r) {
		h.HandleConnection(w, r)
		return
	}
	http.NotFound(w, r)
}

// HandleConnectionStats returns statistics about connections and rooms
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers websocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", h.HandleRoot)
	mux.HandleFunc("/ws", h.HandleConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
