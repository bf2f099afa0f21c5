package audit

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mochilink/mochi-sync/internal/domain"
)

func TestStreamRecorderPublishes(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	rec := NewStreamRecorder(client, "link:audit", 100, slog.Default())

	record := &domain.AuditRecord{
		ID:        "rec-1",
		Executor:  "admin",
		ServerID:  "srv1",
		Operation: "whitelist_add",
		Data:      []byte(`{"playerId":"p1"}`),
		Result:    domain.AuditResultSuccess,
		CreatedAt: time.Date(2025, 3, 7, 18, 22, 41, 0, time.UTC),
	}
	rec.Record(context.Background(), record)

	entries, err := client.XRange(context.Background(), "link:audit", "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 stream entry, got %d", len(entries))
	}
	values := entries[0].Values
	if values["operation"] != "whitelist_add" {
		t.Errorf("expected operation whitelist_add, got %v", values["operation"])
	}
	if values["serverId"] != "srv1" {
		t.Errorf("expected serverId srv1, got %v", values["serverId"])
	}
	if values["data"] != `{"playerId":"p1"}` {
		t.Errorf("unexpected data payload: %v", values["data"])
	}
	if _, ok := values["error"]; ok {
		t.Error("error field should be absent for a success record")
	}
}

func TestStreamRecorderSwallowsFailure(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close() // publishing now fails

	rec := NewStreamRecorder(client, "link:audit", 100, slog.Default())

	// Must not panic or surface the failure.
	rec.Record(context.Background(), NewRecord("admin", "srv1", "ban_ban", nil, domain.AuditResultCached, ""))
}
