// Package audit records every attempted access-list mutation and its outcome.
//
// Recording is best-effort by contract: a recorder must never fail or roll
// back the mutation it describes. Implementations log their own failures and
// swallow them.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mochilink/mochi-sync/internal/domain"
)

// Recorder receives one record per attempted mutation.
type Recorder interface {
	Record(ctx context.Context, rec *domain.AuditRecord)
}

// NewRecord builds a fully populated audit record. data is marshaled into
// the record's operation payload; a marshal failure leaves the payload empty
// rather than dropping the record.
func NewRecord(executor, serverID, operation string, data any, result, errorMessage string) *domain.AuditRecord {
	rec := &domain.AuditRecord{
		ID:           uuid.New().String(),
		Executor:     executor,
		ServerID:     serverID,
		Operation:    operation,
		Result:       result,
		ErrorMessage: errorMessage,
		CreatedAt:    time.Now().UTC(),
	}
	if data != nil {
		if payload, err := json.Marshal(data); err == nil {
			rec.Data = payload
		}
	}
	return rec
}

// LogRecorder writes audit records to the structured log.
type LogRecorder struct {
	log *slog.Logger
}

// NewLogRecorder creates a log-backed recorder.
func NewLogRecorder(log *slog.Logger) *LogRecorder {
	return &LogRecorder{log: log.With("component", "audit")}
}

// Record implements Recorder.
func (r *LogRecorder) Record(ctx context.Context, rec *domain.AuditRecord) {
	attrs := []any{
		"executor", rec.Executor,
		"server", rec.ServerID,
		"operation", rec.Operation,
		"result", rec.Result,
	}
	if rec.ErrorMessage != "" {
		attrs = append(attrs, "error", rec.ErrorMessage)
	}
	r.log.InfoContext(ctx, "audit", attrs...)
}

// Multi fans one record out to several recorders.
type Multi []Recorder

// Record implements Recorder.
func (m Multi) Record(ctx context.Context, rec *domain.AuditRecord) {
	for _, r := range m {
		r.Record(ctx, rec)
	}
}
