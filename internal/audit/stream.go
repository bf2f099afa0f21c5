package audit

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/mochilink/mochi-sync/internal/domain"
)

// StreamRecorder publishes audit records to a Redis Stream so sibling
// subsystems (chat bridge, control panel) can tail mutations live. The
// stream is capped approximately at MaxLen entries.
type StreamRecorder struct {
	client *redis.Client
	stream string
	maxLen int64
	log    *slog.Logger
}

// NewStreamRecorder creates a Redis Stream recorder.
func NewStreamRecorder(client *redis.Client, stream string, maxLen int64, log *slog.Logger) *StreamRecorder {
	return &StreamRecorder{
		client: client,
		stream: stream,
		maxLen: maxLen,
		log:    log.With("component", "audit"),
	}
}

// Record implements Recorder. A publish failure is logged and swallowed.
func (r *StreamRecorder) Record(ctx context.Context, rec *domain.AuditRecord) {
	values := map[string]any{
		"id":        rec.ID,
		"executor":  rec.Executor,
		"serverId":  rec.ServerID,
		"operation": rec.Operation,
		"result":    rec.Result,
		"createdAt": rec.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if len(rec.Data) > 0 {
		values["data"] = string(rec.Data)
	}
	if rec.ErrorMessage != "" {
		values["error"] = rec.ErrorMessage
	}

	err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		r.log.WarnContext(ctx, "failed to publish audit record",
			"stream", r.stream, "operation", rec.Operation, "error", err)
	}
}
