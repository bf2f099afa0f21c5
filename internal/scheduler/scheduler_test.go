package scheduler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mochilink/mochi-sync/internal/audit"
	"github.com/mochilink/mochi-sync/internal/bridge"
	"github.com/mochilink/mochi-sync/internal/domain"
	"github.com/mochilink/mochi-sync/internal/listsync"
	"github.com/mochilink/mochi-sync/internal/storage/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSetup(t *testing.T) (*listsync.Engine, *memory.Store) {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { store.Close() })

	bridges := bridge.NewRegistry()
	for _, id := range []string{"lobby", "survival"} {
		err := store.CreateServer(context.Background(), &domain.Server{
			ID:           id,
			Name:         id,
			Address:      "localhost:25565",
			Capabilities: []string{domain.CapabilityWhitelist, domain.CapabilityBan},
			CreatedAt:    time.Now().UTC(),
			UpdatedAt:    time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("failed to create server: %v", err)
		}
		bridges.Attach(id, bridge.NewFileShim(filepath.Join(t.TempDir(), id+".json")))
	}

	log := discardLogger()
	return listsync.New(store, bridges, audit.NewStoreRecorder(store, log), log), store
}

func TestSyncRound(t *testing.T) {
	engine, store := testSetup(t)
	ctx := context.Background()

	s := New(engine, store, nil, Config{}, discardLogger())
	if err := s.SyncRound(ctx); err != nil {
		t.Fatalf("sync round failed: %v", err)
	}

	// Every server got a pull; both list-type statuses carry a sync stamp.
	for _, id := range []string{"lobby", "survival"} {
		statuses, err := engine.Statuses(ctx, id)
		if err != nil {
			t.Fatalf("statuses failed: %v", err)
		}
		for _, st := range statuses {
			if st.LastSync.IsZero() {
				t.Errorf("expected %s/%s to have synced", id, st.ListType)
			}
		}
	}
}

func TestSweepRound(t *testing.T) {
	engine, store := testSetup(t)
	ctx := context.Background()

	if _, err := engine.Bans.Ban(ctx, "lobby", domain.BanTypePlayer, "griefer", "", "", "admin", time.Millisecond); err != nil {
		t.Fatalf("ban failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	s := New(engine, store, nil, Config{}, discardLogger())
	if err := s.sweepRound(ctx); err != nil {
		t.Fatalf("sweep round failed: %v", err)
	}

	banned, err := engine.Bans.IsBanned(ctx, "lobby", domain.BanTypePlayer, "griefer")
	if err != nil {
		t.Fatalf("isBanned failed: %v", err)
	}
	if banned {
		t.Error("expected expired ban swept by the round")
	}
}

func TestStartStop(t *testing.T) {
	engine, store := testSetup(t)

	s := New(engine, store, nil, Config{
		SyncInterval:  10 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
	}, discardLogger())
	s.Start()
	s.Start() // idempotent while running
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	statuses, err := engine.Statuses(context.Background(), "lobby")
	if err != nil {
		t.Fatalf("statuses failed: %v", err)
	}
	if statuses[0].LastSync.IsZero() {
		t.Error("expected at least one round to have run before stop")
	}
}

func TestStatusPublisher(t *testing.T) {
	engine, store := testSetup(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	pub := NewStatusPublisher(client, "mochi:status", discardLogger())
	servers, err := store.ListServers(ctx)
	if err != nil {
		t.Fatalf("listServers failed: %v", err)
	}
	if err := pub.Publish(ctx, engine, servers); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	raw := mr.HGet("mochi:status", "lobby")
	if raw == "" {
		t.Fatal("expected a status field for lobby")
	}
	var status publishedStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		t.Fatalf("decoding published status: %v", err)
	}
	if status.ServerID != "lobby" {
		t.Errorf("unexpected server id %q", status.ServerID)
	}
	if !status.IsOnline {
		t.Error("expected the file-shim server to report online")
	}
	if len(status.Statuses) != 2 {
		t.Errorf("expected 2 list statuses, got %d", len(status.Statuses))
	}

	if err := pub.Remove(ctx, "lobby"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if mr.HGet("mochi:status", "lobby") != "" {
		t.Error("expected lobby field removed")
	}
}
