package handler

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mochilink/mochi-sync/internal/domain"
	"github.com/mochilink/mochi-sync/internal/listsync"
	"github.com/mochilink/mochi-sync/internal/validation"
)

// BanHandler handles per-server ban endpoints.
type BanHandler struct {
	engine *listsync.Engine
}

// NewBanHandler creates a new BanHandler.
func NewBanHandler(engine *listsync.Engine) *BanHandler {
	return &BanHandler{engine: engine}
}

// List lists the cached bans for a server. Active records only, unless
// ?includeInactive=true.
func (h *BanHandler) List(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "server_id")
	includeInactive := r.URL.Query().Get("includeInactive") == "true"

	entries, err := h.engine.Bans.List(r.Context(), serverID, includeInactive)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, entries)
}

// Create bans a target, applying immediately when the server is reachable
// and queuing otherwise.
func (h *BanHandler) Create(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "server_id")

	var req domain.AddBanRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.BanType.Valid() {
		respondValidationError(w, "banType", string(req.BanType), "unknown ban type")
		return
	}
	if err := validation.ValidateBanTarget(req.BanType, req.Target); err != nil {
		respondValidationError(w, "target", req.Target, err.Error())
		return
	}
	duration := time.Duration(req.DurationMS) * time.Millisecond
	if err := validation.ValidateBanDuration(duration); err != nil {
		respondValidationError(w, "durationMs", "", err.Error())
		return
	}

	executor := executorOr(r, req.Executor)
	if _, err := h.engine.Bans.Ban(r.Context(), serverID, req.BanType, req.Target, req.TargetName, req.Reason, executor, duration); err != nil {
		handleError(w, err)
		return
	}

	queued, err := h.pendingFor(r, serverID, req.BanType, req.Target)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, mutationResult{ServerID: serverID, Target: req.Target, Queued: queued})
}

// Delete unbans a target.
func (h *BanHandler) Delete(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "server_id")
	banType := domain.BanType(chi.URLParam(r, "ban_type"))
	target, _ := url.PathUnescape(chi.URLParam(r, "target"))

	if !banType.Valid() {
		respondValidationError(w, "banType", string(banType), "unknown ban type")
		return
	}
	if target == "" {
		respondError(w, http.StatusBadRequest, "target is required")
		return
	}

	var req domain.RemoveBanRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	executor := executorOr(r, req.Executor)
	if _, err := h.engine.Bans.Unban(r.Context(), serverID, banType, target, req.Reason, executor); err != nil {
		handleError(w, err)
		return
	}

	queued, err := h.pendingFor(r, serverID, banType, target)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, mutationResult{ServerID: serverID, Target: target, Queued: queued})
}

// Check reports whether a target is currently banned, pending intent and
// expiry included.
func (h *BanHandler) Check(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "server_id")
	banType := domain.BanType(chi.URLParam(r, "ban_type"))
	target, _ := url.PathUnescape(chi.URLParam(r, "target"))

	if !banType.Valid() {
		respondValidationError(w, "banType", string(banType), "unknown ban type")
		return
	}

	banned, err := h.engine.Bans.IsBanned(r.Context(), serverID, banType, target)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"serverId": serverID,
		"banType":  banType,
		"target":   target,
		"banned":   banned,
	})
}

// Pending lists the queued ban operations for a server.
func (h *BanHandler) Pending(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "server_id")

	ops, err := h.engine.Bans.Pending(r.Context(), serverID)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ops)
}

// pendingFor reports whether a queued op exists for the target.
func (h *BanHandler) pendingFor(r *http.Request, serverID string, banType domain.BanType, target string) (bool, error) {
	ops, err := h.engine.Bans.Pending(r.Context(), serverID)
	if err != nil {
		return false, err
	}
	key := domain.BanKey(banType, target)
	for _, op := range ops {
		if op.Key() == key {
			return true, nil
		}
	}
	return false, nil
}
