package listsync

import (
	"context"
	"testing"

	"github.com/mochilink/mochi-sync/internal/domain"
)

func TestEngineStatuses(t *testing.T) {
	engine, br, _ := testEngine(t, "lobby")
	ctx := context.Background()
	br.setReachable(false)

	if _, err := engine.Whitelist.Add(ctx, "lobby", "alice", "Alice", "admin", ""); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	statuses, err := engine.Statuses(ctx, "lobby")
	if err != nil {
		t.Fatalf("statuses failed: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	byType := make(map[domain.ListType]*domain.SyncStatus, 2)
	for _, st := range statuses {
		byType[st.ListType] = st
	}
	if byType[domain.ListTypeWhitelist].PendingOperations != 1 {
		t.Errorf("expected 1 pending whitelist op, got %d", byType[domain.ListTypeWhitelist].PendingOperations)
	}
	if byType[domain.ListTypeBan].PendingOperations != 0 {
		t.Errorf("expected 0 pending ban ops, got %d", byType[domain.ListTypeBan].PendingOperations)
	}
	for _, st := range statuses {
		if st.IsOnline {
			t.Errorf("expected %s status to be offline", st.ListType)
		}
	}
}

func TestEngineStats(t *testing.T) {
	engine, br, _ := testEngine(t, "lobby")
	ctx := context.Background()

	if _, err := engine.Whitelist.Add(ctx, "lobby", "alice", "Alice", "admin", ""); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := engine.Bans.Ban(ctx, "lobby", domain.BanTypePlayer, "griefer", "", "", "admin", 0); err != nil {
		t.Fatalf("ban failed: %v", err)
	}
	br.setReachable(false)
	if _, err := engine.Whitelist.Add(ctx, "lobby", "bob", "Bob", "admin", ""); err != nil {
		t.Fatalf("offline add failed: %v", err)
	}

	stats, err := engine.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.ServersKnown != 1 {
		t.Errorf("expected 1 known server, got %d", stats.ServersKnown)
	}
	if stats.ServersOnline != 0 {
		t.Errorf("expected 0 online servers, got %d", stats.ServersOnline)
	}
	// alice (whitelist) + griefer (ban); bob is still only pending.
	if stats.TotalEntries != 2 {
		t.Errorf("expected 2 entries, got %d", stats.TotalEntries)
	}
	if stats.TotalPendingOperations != 1 {
		t.Errorf("expected 1 pending op, got %d", stats.TotalPendingOperations)
	}
}

func TestEngineSyncServerSkipsInProgress(t *testing.T) {
	engine, _, _ := testEngine(t, "lobby")

	engine.Whitelist.state("lobby").syncing.Store(true)
	defer engine.Whitelist.state("lobby").syncing.Store(false)

	// The whitelist pass is busy; the ban pass still runs and the skip is
	// not surfaced as an error.
	if err := engine.SyncServer(context.Background(), "lobby"); err != nil {
		t.Fatalf("syncServer failed: %v", err)
	}
}

func TestEngineForceSync(t *testing.T) {
	engine, br, _ := testEngine(t, "lobby")
	ctx := context.Background()
	br.setReachable(false)

	if _, err := engine.Whitelist.Add(ctx, "lobby", "alice", "Alice", "admin", ""); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	br.setReachable(true)
	br.players["carol"] = remotePlayerFixture("carol")

	if err := engine.ForceSync(ctx, "lobby"); err != nil {
		t.Fatalf("forceSync failed: %v", err)
	}

	// Pull first, then drain: the final state holds both the remote player
	// and the replayed local add.
	for _, id := range []string{"alice", "carol"} {
		listed, err := engine.Whitelist.IsWhitelisted(ctx, "lobby", id)
		if err != nil {
			t.Fatalf("isWhitelisted failed: %v", err)
		}
		if !listed {
			t.Errorf("expected %s to be whitelisted after force sync", id)
		}
	}
	if _, found := br.players["alice"]; !found {
		t.Error("expected alice applied to the remote during drain")
	}
}

func TestEngineForceSyncAllSkipsOffline(t *testing.T) {
	engine, br, _ := testEngine(t, "lobby")
	ctx := context.Background()
	br.setReachable(false)

	// An offline server must not fail the fleet-wide pass.
	if err := engine.ForceSyncAll(ctx); err != nil {
		t.Fatalf("forceSyncAll failed: %v", err)
	}

	br.setReachable(true)
	br.players["carol"] = remotePlayerFixture("carol")
	if err := engine.ForceSyncAll(ctx); err != nil {
		t.Fatalf("forceSyncAll failed: %v", err)
	}

	all, err := engine.AllStatuses(ctx)
	if err != nil {
		t.Fatalf("allStatuses failed: %v", err)
	}
	statuses, ok := all["lobby"]
	if !ok || len(statuses) != 2 {
		t.Fatalf("expected 2 statuses for lobby, got %v", all)
	}
	for _, st := range statuses {
		if st.LastSync.IsZero() {
			t.Errorf("expected %s lastSync to be set", st.ListType)
		}
	}
}
