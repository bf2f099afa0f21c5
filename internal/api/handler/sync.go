package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mochilink/mochi-sync/internal/listsync"
)

// SyncHandler handles sync control and introspection endpoints.
type SyncHandler struct {
	engine *listsync.Engine
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(engine *listsync.Engine) *SyncHandler {
	return &SyncHandler{engine: engine}
}

// Force runs a full pull-then-drain cycle for one server, treating the
// server as the trust anchor.
func (h *SyncHandler) Force(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "server_id")

	if err := h.engine.ForceSync(r.Context(), serverID); err != nil {
		handleError(w, err)
		return
	}

	statuses, err := h.engine.Statuses(r.Context(), serverID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, statuses)
}

// ForceAll force-syncs every registered server, skipping unreachable ones,
// and returns the resulting statuses keyed by server id.
func (h *SyncHandler) ForceAll(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ForceSyncAll(r.Context()); err != nil {
		handleError(w, err)
		return
	}

	all, err := h.engine.AllStatuses(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, all)
}

// StatusAll returns the sync statuses of every registered server.
func (h *SyncHandler) StatusAll(w http.ResponseWriter, r *http.Request) {
	all, err := h.engine.AllStatuses(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, all)
}

// Status returns the sync status of both list types for a server.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "server_id")

	statuses, err := h.engine.Statuses(r.Context(), serverID)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, statuses)
}

// Stats returns engine-wide counters.
func (h *SyncHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}
