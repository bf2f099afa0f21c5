package listsync

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mochilink/mochi-sync/internal/audit"
	"github.com/mochilink/mochi-sync/internal/bridge"
	"github.com/mochilink/mochi-sync/internal/domain"
	"github.com/mochilink/mochi-sync/internal/storage"
	"github.com/mochilink/mochi-sync/internal/storage/memory"
)

// fakeBridge is an in-memory server the engine can talk to, with switches
// for reachability, capability, and failure injection.
type fakeBridge struct {
	mu        sync.Mutex
	reachable bool
	caps      map[string]bool
	players   map[string]bridge.RemotePlayer
	bans      map[string]bridge.RemoteBan

	failApply  bool
	rejectOps  bool
	failFetch  bool
	applyCalls int
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		reachable: true,
		caps: map[string]bool{
			domain.CapabilityWhitelist: true,
			domain.CapabilityBan:       true,
		},
		players: make(map[string]bridge.RemotePlayer),
		bans:    make(map[string]bridge.RemoteBan),
	}
}

func (b *fakeBridge) IsReachable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reachable
}

func (b *fakeBridge) setReachable(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reachable = v
}

func (b *fakeBridge) HasCapability(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.caps[name]
}

func (b *fakeBridge) FetchWhitelist(ctx context.Context) ([]bridge.RemotePlayer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failFetch {
		return nil, errTransport
	}
	out := make([]bridge.RemotePlayer, 0, len(b.players))
	for _, p := range b.players {
		out = append(out, p)
	}
	return out, nil
}

func (b *fakeBridge) FetchBanList(ctx context.Context) ([]bridge.RemoteBan, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failFetch {
		return nil, errTransport
	}
	out := make([]bridge.RemoteBan, 0, len(b.bans))
	for _, bn := range b.bans {
		out = append(out, bn)
	}
	return out, nil
}

func (b *fakeBridge) ApplyWhitelistOp(ctx context.Context, op domain.WhitelistOp) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.applyCalls++
	if b.failApply {
		return false, errTransport
	}
	if b.rejectOps {
		return false, nil
	}
	if op.Type == domain.WhitelistOpAdd {
		b.players[op.PlayerID] = bridge.RemotePlayer{ID: op.PlayerID, Name: op.PlayerName, AddedBy: op.Executor}
	} else {
		delete(b.players, op.PlayerID)
	}
	return true, nil
}

func (b *fakeBridge) ApplyBanOp(ctx context.Context, op domain.BanOp) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.applyCalls++
	if b.failApply {
		return false, errTransport
	}
	if b.rejectOps {
		return false, nil
	}
	key := domain.BanKey(op.BanType, op.Target)
	if op.Type == domain.BanOpBan {
		b.bans[key] = bridge.RemoteBan{
			Type:      op.BanType,
			Target:    op.Target,
			Reason:    op.Reason,
			BannedBy:  op.Executor,
			ExpiresAt: op.ExpiresAt(),
			Active:    true,
		}
	} else {
		delete(b.bans, key)
	}
	return true, nil
}

func (b *fakeBridge) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.applyCalls
}

func remotePlayerFixture(id string) bridge.RemotePlayer {
	return bridge.RemotePlayer{ID: id, Name: id, AddedBy: "console"}
}

var errTransport = &transportError{}

type transportError struct{}

func (*transportError) Error() string { return "connection reset" }

// breakableStore wraps the memory store with a switch that makes queue
// persistence fail.
type breakableStore struct {
	*memory.Store
	failReplace bool
}

func (s *breakableStore) ReplacePendingOps(ctx context.Context, serverID string, listType domain.ListType, payloads []json.RawMessage) error {
	if s.failReplace {
		return errDiskFull
	}
	return s.Store.ReplacePendingOps(ctx, serverID, listType, payloads)
}

var errDiskFull = &diskFullError{}

type diskFullError struct{}

func (*diskFullError) Error() string { return "disk full" }

// testEngine wires an engine over a memory store with one registered server
// and its fake bridge attached.
func testEngine(t *testing.T, serverID string) (*Engine, *fakeBridge, *memory.Store) {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { store.Close() })
	engine, br := testEngineOver(t, serverID, store)
	return engine, br, store
}

// testEngineOver is testEngine with a caller-supplied store.
func testEngineOver(t *testing.T, serverID string, store storage.Storage) (*Engine, *fakeBridge) {
	t.Helper()

	err := store.CreateServer(context.Background(), &domain.Server{
		ID:           serverID,
		Name:         serverID,
		Address:      "localhost:25565",
		Capabilities: []string{domain.CapabilityWhitelist, domain.CapabilityBan},
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	br := newFakeBridge()
	bridges := bridge.NewRegistry()
	bridges.Attach(serverID, br)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := New(store, bridges, audit.NewStoreRecorder(store, log), log)
	return engine, br
}
