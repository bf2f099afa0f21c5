package handler

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/mochilink/mochi-sync/internal/api/middleware"
	"github.com/mochilink/mochi-sync/internal/domain"
	"github.com/mochilink/mochi-sync/internal/listsync"
	"github.com/mochilink/mochi-sync/internal/validation"
)

// WhitelistHandler handles per-server whitelist endpoints.
type WhitelistHandler struct {
	engine *listsync.Engine
}

// NewWhitelistHandler creates a new WhitelistHandler.
func NewWhitelistHandler(engine *listsync.Engine) *WhitelistHandler {
	return &WhitelistHandler{engine: engine}
}

// mutationResult reports how a mutation was handled: applied directly on the
// server, or queued for later delivery.
type mutationResult struct {
	ServerID string `json:"serverId"`
	Target   string `json:"target"`
	Queued   bool   `json:"queued"`
}

// executorOr returns the explicit executor, falling back to the calling API
// key's name.
func executorOr(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if key := middleware.GetAPIKeyFromContext(r.Context()); key != nil {
		return key.Name
	}
	return "api"
}

// List lists the cached whitelist for a server.
func (h *WhitelistHandler) List(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "server_id")

	entries, err := h.engine.Whitelist.List(r.Context(), serverID)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, entries)
}

// Add adds a player to a server's whitelist, applying immediately when the
// server is reachable and queuing otherwise.
func (h *WhitelistHandler) Add(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "server_id")

	var req domain.AddWhitelistRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validation.ValidatePlayerID(req.PlayerID); err != nil {
		respondValidationError(w, "playerId", req.PlayerID, err.Error())
		return
	}

	executor := executorOr(r, req.Executor)
	if _, err := h.engine.Whitelist.Add(r.Context(), serverID, req.PlayerID, req.PlayerName, executor, req.Reason); err != nil {
		handleError(w, err)
		return
	}

	queued, err := h.pendingFor(r, serverID, req.PlayerID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, mutationResult{ServerID: serverID, Target: req.PlayerID, Queued: queued})
}

// Remove removes a player from a server's whitelist.
func (h *WhitelistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "server_id")
	playerID, _ := url.PathUnescape(chi.URLParam(r, "player_id"))
	if playerID == "" {
		respondError(w, http.StatusBadRequest, "player_id is required")
		return
	}

	var req domain.RemoveWhitelistRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	executor := executorOr(r, req.Executor)
	if _, err := h.engine.Whitelist.Remove(r.Context(), serverID, playerID, executor, req.Reason); err != nil {
		handleError(w, err)
		return
	}

	queued, err := h.pendingFor(r, serverID, playerID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, mutationResult{ServerID: serverID, Target: playerID, Queued: queued})
}

// Check reports whether a player is whitelisted, pending intent included.
func (h *WhitelistHandler) Check(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "server_id")
	playerID, _ := url.PathUnescape(chi.URLParam(r, "player_id"))
	if playerID == "" {
		respondError(w, http.StatusBadRequest, "player_id is required")
		return
	}

	listed, err := h.engine.Whitelist.IsWhitelisted(r.Context(), serverID, playerID)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"serverId":    serverID,
		"playerId":    playerID,
		"whitelisted": listed,
	})
}

// Pending lists the queued whitelist operations for a server.
func (h *WhitelistHandler) Pending(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "server_id")

	ops, err := h.engine.Whitelist.Pending(r.Context(), serverID)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ops)
}

// pendingFor reports whether a queued op exists for the player.
func (h *WhitelistHandler) pendingFor(r *http.Request, serverID, playerID string) (bool, error) {
	ops, err := h.engine.Whitelist.Pending(r.Context(), serverID)
	if err != nil {
		return false, err
	}
	for _, op := range ops {
		if op.PlayerID == playerID {
			return true, nil
		}
	}
	return false, nil
}
