package handler

import (
	"net/http"
	"strconv"

	"github.com/mochilink/mochi-sync/internal/domain"
	"github.com/mochilink/mochi-sync/internal/storage"
)

// AuditHandler handles audit log query endpoints.
type AuditHandler struct {
	store storage.Storage
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(store storage.Storage) *AuditHandler {
	return &AuditHandler{store: store}
}

const defaultAuditLimit = 100

// List queries the audit log, newest first. Supported query parameters:
// serverId, operation, result, limit.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.AuditFilter{
		ServerID:  q.Get("serverId"),
		Operation: q.Get("operation"),
		Result:    q.Get("result"),
		Limit:     defaultAuditLimit,
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	records, err := h.store.ListAudit(r.Context(), filter)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, records)
}
