package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mochilink/mochi-sync/internal/bridge"
	"github.com/mochilink/mochi-sync/internal/domain"
	"github.com/mochilink/mochi-sync/internal/storage"
	"github.com/mochilink/mochi-sync/internal/validation"
)

// ServerHandler handles server registry endpoints.
type ServerHandler struct {
	store   storage.Storage
	bridges *bridge.Registry
}

// NewServerHandler creates a new ServerHandler.
func NewServerHandler(store storage.Storage, bridges *bridge.Registry) *ServerHandler {
	return &ServerHandler{store: store, bridges: bridges}
}

// serverView is a Server plus its live reachability.
type serverView struct {
	*domain.Server
	IsOnline bool `json:"isOnline"`
}

// Create registers a new server.
func (h *ServerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateServerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := validation.ValidateServerID(req.ID); err != nil {
		respondValidationError(w, "id", req.ID, err.Error())
		return
	}
	if req.Name == "" {
		req.Name = req.ID
	}
	for _, cap := range req.Capabilities {
		if cap != domain.CapabilityWhitelist && cap != domain.CapabilityBan {
			respondValidationError(w, "capabilities", cap, "unknown capability")
			return
		}
	}

	now := time.Now()
	server := &domain.Server{
		ID:           req.ID,
		Name:         req.Name,
		Address:      req.Address,
		Capabilities: req.Capabilities,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.store.CreateServer(r.Context(), server); err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, server)
}

// List lists all registered servers with their reachability.
func (h *ServerHandler) List(w http.ResponseWriter, r *http.Request) {
	servers, err := h.store.ListServers(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	views := make([]serverView, 0, len(servers))
	for _, s := range servers {
		views = append(views, serverView{Server: s, IsOnline: h.bridges.Reachable(s.ID)})
	}
	respondJSON(w, http.StatusOK, views)
}

// Get gets a server by id.
func (h *ServerHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "server_id")
	server, err := h.store.GetServer(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, serverView{Server: server, IsOnline: h.bridges.Reachable(id)})
}

// Update updates a server registration.
func (h *ServerHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "server_id")

	var req domain.UpdateServerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	server, err := h.store.GetServer(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	if req.Name != nil {
		server.Name = *req.Name
	}
	if req.Address != nil {
		server.Address = *req.Address
	}
	if req.Capabilities != nil {
		for _, cap := range req.Capabilities {
			if cap != domain.CapabilityWhitelist && cap != domain.CapabilityBan {
				respondValidationError(w, "capabilities", cap, "unknown capability")
				return
			}
		}
		server.Capabilities = req.Capabilities
	}
	server.UpdatedAt = time.Now()

	if err := h.store.UpdateServer(r.Context(), server); err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, server)
}

// Delete deregisters a server and drops its bridge handle.
func (h *ServerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "server_id")

	if err := h.store.DeleteServer(r.Context(), id); err != nil {
		handleError(w, err)
		return
	}
	h.bridges.Detach(id)

	w.WriteHeader(http.StatusNoContent)
}
