// Package server implements the operational HTTP surface of the engine.
//
// Routes:
//
//	GET  /health          → liveness probe
//	GET  /status          → coordinator schedule + rate gateway usage
//	POST /admin/run?user= → trigger one discovery cycle immediately
package server

import (
	"encoding/json"
	"log"
	"net/http"

	"jobsprint/discovery-engine/internal/ratelimit"
	"jobsprint/discovery-engine/internal/scheduler"
)

// Handler holds shared dependencies.
type Handler struct {
	coord   *scheduler.Coordinator
	gateway *ratelimit.Gateway
	version string
}

// NewHandler returns a configured Handler.
func NewHandler(coord *scheduler.Coordinator, gateway *ratelimit.Gateway, version string) *Handler {
	return &Handler{coord: coord, gateway: gateway, version: version}
}

// RegisterRoutes mounts all engine routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/status", h.handleStatus)
	mux.HandleFunc("/admin/run", h.handleAdminRun)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "discovery-engine",
		"version": h.version,
	})
}

// statusResponse wraps the coordinator snapshot with gateway usage.
type statusResponse struct {
	scheduler.Status
	RateLimitUsed  int `json:"rateLimitUsed"`
	RateLimitTotal int `json:"rateLimitTotal"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	used, total := h.gateway.InFlight()
	writeJSON(w, http.StatusOK, statusResponse{
		Status:         h.coord.Status(),
		RateLimitUsed:  used,
		RateLimitTotal: total,
	})
}

func (h *Handler) handleAdminRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.URL.Query().Get("user")
	if userID == "" {
		jsonError(w, "user query parameter is required", http.StatusBadRequest)
		return
	}

	log.Printf("[server] Manual cycle requested for user %s", userID)
	if err := h.coord.RunCycleNow(r.Context(), userID); err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "completed",
		"userId": userID,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] Response encode error: %v", err)
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
