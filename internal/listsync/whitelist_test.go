package listsync

import (
	"context"
	"errors"
	"testing"

	"github.com/mochilink/mochi-sync/internal/domain"
	"github.com/mochilink/mochi-sync/internal/storage/memory"
)

func TestWhitelistAddOnline(t *testing.T) {
	engine, br, _ := testEngine(t, "lobby")
	ctx := context.Background()

	ok, err := engine.Whitelist.Add(ctx, "lobby", "alice", "Alice", "admin", "regular")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if !ok {
		t.Fatal("expected add to report success")
	}

	if _, found := br.players["alice"]; !found {
		t.Error("expected remote whitelist to contain alice")
	}
	listed, err := engine.Whitelist.IsWhitelisted(ctx, "lobby", "alice")
	if err != nil {
		t.Fatalf("isWhitelisted failed: %v", err)
	}
	if !listed {
		t.Error("expected alice to be whitelisted")
	}
	pending, err := engine.Whitelist.Pending(ctx, "lobby")
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected empty queue after online apply, got %d ops", len(pending))
	}
}

func TestWhitelistAddOfflineQueues(t *testing.T) {
	engine, br, store := testEngine(t, "lobby")
	ctx := context.Background()
	br.setReachable(false)

	ok, err := engine.Whitelist.Add(ctx, "lobby", "alice", "Alice", "admin", "")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if !ok {
		t.Fatal("expected offline add to report success")
	}

	// Intent is visible immediately even though the server never saw it.
	listed, err := engine.Whitelist.IsWhitelisted(ctx, "lobby", "alice")
	if err != nil {
		t.Fatalf("isWhitelisted failed: %v", err)
	}
	if !listed {
		t.Error("expected queued add to count as whitelisted")
	}
	if br.calls() != 0 {
		t.Errorf("expected no remote calls while offline, got %d", br.calls())
	}

	// The queue survives in the store.
	records, err := store.ListPendingOps(ctx, "lobby", domain.ListTypeWhitelist)
	if err != nil {
		t.Fatalf("listPendingOps failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected 1 persisted pending op, got %d", len(records))
	}
}

func TestWhitelistAddNotQueuedWhenPersistFails(t *testing.T) {
	store := &breakableStore{Store: memory.New()}
	t.Cleanup(func() { store.Close() })
	engine, br := testEngineOver(t, "lobby", store)
	ctx := context.Background()
	br.setReachable(false)

	store.failReplace = true
	if _, err := engine.Whitelist.Add(ctx, "lobby", "alice", "Alice", "admin", ""); err == nil {
		t.Fatal("expected add to fail when the queue cannot be persisted")
	}

	// The failed op must not linger in memory as queued intent.
	pending, err := engine.Whitelist.Pending(ctx, "lobby")
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected empty queue after failed persist, got %d ops", len(pending))
	}
	listed, err := engine.Whitelist.IsWhitelisted(ctx, "lobby", "alice")
	if err != nil {
		t.Fatalf("isWhitelisted failed: %v", err)
	}
	if listed {
		t.Error("expected a failed add to leave alice unlisted")
	}

	// Nor may a later drain deliver it to the server.
	store.failReplace = false
	br.setReachable(true)
	if err := engine.Whitelist.ProcessPending(ctx, "lobby"); err != nil {
		t.Fatalf("processPending failed: %v", err)
	}
	if br.calls() != 0 {
		t.Errorf("expected no remote applies for a failed add, got %d", br.calls())
	}
}

func TestWhitelistOfflineAddRemoveCancels(t *testing.T) {
	engine, br, _ := testEngine(t, "lobby")
	ctx := context.Background()
	br.setReachable(false)

	if _, err := engine.Whitelist.Add(ctx, "lobby", "alice", "Alice", "admin", ""); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := engine.Whitelist.Remove(ctx, "lobby", "alice", "admin", ""); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	pending, err := engine.Whitelist.Pending(ctx, "lobby")
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected cancelled ops to leave an empty queue, got %d", len(pending))
	}

	// Bringing the server back must not replay anything.
	br.setReachable(true)
	if err := engine.Whitelist.ProcessPending(ctx, "lobby"); err != nil {
		t.Fatalf("processPending failed: %v", err)
	}
	if br.calls() != 0 {
		t.Errorf("expected no remote calls for a cancelled pair, got %d", br.calls())
	}
}

func TestWhitelistDrainAppliesOnce(t *testing.T) {
	engine, br, _ := testEngine(t, "lobby")
	ctx := context.Background()
	br.setReachable(false)

	if _, err := engine.Whitelist.Add(ctx, "lobby", "alice", "Alice", "admin", ""); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := engine.Whitelist.Add(ctx, "lobby", "bob", "Bob", "admin", ""); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	br.setReachable(true)
	if err := engine.Whitelist.ProcessPending(ctx, "lobby"); err != nil {
		t.Fatalf("processPending failed: %v", err)
	}

	if br.calls() != 2 {
		t.Errorf("expected exactly 2 remote calls, got %d", br.calls())
	}
	pending, err := engine.Whitelist.Pending(ctx, "lobby")
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected drained queue, got %d ops", len(pending))
	}
	if _, found := br.players["alice"]; !found {
		t.Error("expected alice on the remote whitelist after drain")
	}

	// A second drain is a no-op.
	if err := engine.Whitelist.ProcessPending(ctx, "lobby"); err != nil {
		t.Fatalf("second processPending failed: %v", err)
	}
	if br.calls() != 2 {
		t.Errorf("expected no additional remote calls, got %d", br.calls())
	}
}

func TestWhitelistDrainKeepsFailedOps(t *testing.T) {
	engine, br, _ := testEngine(t, "lobby")
	ctx := context.Background()
	br.setReachable(false)

	if _, err := engine.Whitelist.Add(ctx, "lobby", "alice", "Alice", "admin", ""); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	br.setReachable(true)
	br.failApply = true
	if err := engine.Whitelist.ProcessPending(ctx, "lobby"); err == nil {
		t.Fatal("expected drain error when remote apply fails")
	}

	pending, err := engine.Whitelist.Pending(ctx, "lobby")
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected failed op to stay queued, got %d ops", len(pending))
	}

	br.failApply = false
	if err := engine.Whitelist.ProcessPending(ctx, "lobby"); err != nil {
		t.Fatalf("retry drain failed: %v", err)
	}
	if _, found := br.players["alice"]; !found {
		t.Error("expected alice applied on retry")
	}
}

func TestWhitelistPullReplacesCache(t *testing.T) {
	engine, br, _ := testEngine(t, "lobby")
	ctx := context.Background()

	br.players["carol"] = remotePlayerFixture("carol")
	br.players["dave"] = remotePlayerFixture("dave")

	if err := engine.Whitelist.SyncFromServer(ctx, "lobby"); err != nil {
		t.Fatalf("syncFromServer failed: %v", err)
	}

	entries, err := engine.Whitelist.List(ctx, "lobby")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].PlayerID != "carol" || entries[1].PlayerID != "dave" {
		t.Errorf("unexpected entries: %s, %s", entries[0].PlayerID, entries[1].PlayerID)
	}
}

func TestWhitelistPullFailureKeepsStaleCache(t *testing.T) {
	engine, br, _ := testEngine(t, "lobby")
	ctx := context.Background()

	br.players["carol"] = remotePlayerFixture("carol")
	if err := engine.Whitelist.SyncFromServer(ctx, "lobby"); err != nil {
		t.Fatalf("initial pull failed: %v", err)
	}

	br.failFetch = true
	if err := engine.Whitelist.SyncFromServer(ctx, "lobby"); err == nil {
		t.Fatal("expected pull error")
	}

	// Stale-but-available: the previous cache must survive.
	entries, err := engine.Whitelist.List(ctx, "lobby")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 || entries[0].PlayerID != "carol" {
		t.Errorf("expected stale cache to remain, got %d entries", len(entries))
	}

	status, err := engine.Whitelist.Status(ctx, "lobby")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if len(status.SyncErrors) == 0 {
		t.Error("expected sync errors to be recorded")
	}
}

func TestWhitelistPullUnreachable(t *testing.T) {
	engine, br, _ := testEngine(t, "lobby")
	br.setReachable(false)

	err := engine.Whitelist.SyncFromServer(context.Background(), "lobby")
	if !errors.Is(err, domain.ErrServerUnreachable) {
		t.Fatalf("expected ErrServerUnreachable, got %v", err)
	}
}

func TestWhitelistUnknownServer(t *testing.T) {
	engine, _, _ := testEngine(t, "lobby")

	_, err := engine.Whitelist.Add(context.Background(), "ghost", "alice", "Alice", "admin", "")
	if !errors.Is(err, domain.ErrUnknownServer) {
		t.Fatalf("expected ErrUnknownServer, got %v", err)
	}
	_, err = engine.Whitelist.List(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrUnknownServer) {
		t.Fatalf("expected ErrUnknownServer, got %v", err)
	}
}

func TestWhitelistSyncInProgress(t *testing.T) {
	engine, _, _ := testEngine(t, "lobby")

	st := engine.Whitelist.state("lobby")
	st.syncing.Store(true)
	defer st.syncing.Store(false)

	err := engine.Whitelist.RunSyncPass(context.Background(), "lobby")
	if !errors.Is(err, domain.ErrSyncInProgress) {
		t.Fatalf("expected ErrSyncInProgress, got %v", err)
	}
	err = engine.Whitelist.ForceSync(context.Background(), "lobby")
	if !errors.Is(err, domain.ErrSyncInProgress) {
		t.Fatalf("expected ErrSyncInProgress, got %v", err)
	}
}

func TestWhitelistHydratesFromStore(t *testing.T) {
	engine, br, store := testEngine(t, "lobby")
	ctx := context.Background()
	br.setReachable(false)

	if _, err := engine.Whitelist.Add(ctx, "lobby", "alice", "Alice", "admin", ""); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	// A fresh manager over the same store sees the queued intent.
	engine2 := New(store, engine.bridges, engine.Whitelist.recorder, engine.Whitelist.log)
	listed, err := engine2.Whitelist.IsWhitelisted(ctx, "lobby", "alice")
	if err != nil {
		t.Fatalf("isWhitelisted after restart failed: %v", err)
	}
	if !listed {
		t.Error("expected queued add to survive restart")
	}
}

func TestWhitelistSyncToServer(t *testing.T) {
	engine, br, _ := testEngine(t, "lobby")
	ctx := context.Background()

	// Seed the cache with alice, then make the remote diverge: alice gone,
	// eve present.
	if _, err := engine.Whitelist.Add(ctx, "lobby", "alice", "Alice", "admin", ""); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	delete(br.players, "alice")
	br.players["eve"] = remotePlayerFixture("eve")

	if err := engine.Whitelist.SyncToServer(ctx, "lobby"); err != nil {
		t.Fatalf("syncToServer failed: %v", err)
	}

	if _, found := br.players["alice"]; !found {
		t.Error("expected alice pushed back to the remote")
	}
	if _, found := br.players["eve"]; found {
		t.Error("expected eve removed from the remote")
	}
}
