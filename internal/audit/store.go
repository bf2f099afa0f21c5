package audit

import (
	"context"
	"log/slog"

	"github.com/mochilink/mochi-sync/internal/domain"
	"github.com/mochilink/mochi-sync/internal/storage"
)

// StoreRecorder persists audit records to durable storage.
type StoreRecorder struct {
	store storage.Storage
	log   *slog.Logger
}

// NewStoreRecorder creates a storage-backed recorder.
func NewStoreRecorder(store storage.Storage, log *slog.Logger) *StoreRecorder {
	return &StoreRecorder{store: store, log: log.With("component", "audit")}
}

// Record implements Recorder. A persistence failure is logged and swallowed;
// audit must never fail the mutation it describes.
func (r *StoreRecorder) Record(ctx context.Context, rec *domain.AuditRecord) {
	if err := r.store.AppendAudit(ctx, rec); err != nil {
		r.log.WarnContext(ctx, "failed to persist audit record",
			"operation", rec.Operation, "server", rec.ServerID, "error", err)
	}
}
