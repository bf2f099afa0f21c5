package listsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/mochilink/mochi-sync/internal/audit"
	"github.com/mochilink/mochi-sync/internal/bridge"
	"github.com/mochilink/mochi-sync/internal/domain"
	"github.com/mochilink/mochi-sync/internal/storage"
)

// whitelistState is the per-server whitelist state: cache, pending queue,
// and the bookkeeping behind SyncStatus. The mutex serializes every
// mutation and sync pass for the (server, whitelist) pair; the syncing flag
// additionally makes periodic passes non-reentrant (a second pass skips
// instead of queuing behind the lock).
type whitelistState struct {
	mu         sync.Mutex
	cache      *whitelistCache
	pending    []domain.WhitelistOp
	hydrated   bool
	lastSync   time.Time
	lastErrors []string
	syncing    atomic.Bool
}

// WhitelistManager owns the whitelist caches and pending logs for all
// servers and runs the reconciliation protocols against their bridges.
type WhitelistManager struct {
	store    storage.Storage
	bridges  *bridge.Registry
	recorder audit.Recorder
	log      *slog.Logger

	mu     sync.Mutex
	states map[string]*whitelistState
}

// NewWhitelistManager creates a whitelist manager.
func NewWhitelistManager(store storage.Storage, bridges *bridge.Registry, recorder audit.Recorder, log *slog.Logger) *WhitelistManager {
	return &WhitelistManager{
		store:    store,
		bridges:  bridges,
		recorder: recorder,
		log:      log.With("component", "whitelist"),
		states:   make(map[string]*whitelistState),
	}
}

// state returns the per-server state, creating it on first touch.
func (m *WhitelistManager) state(serverID string) *whitelistState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[serverID]
	if !ok {
		st = &whitelistState{cache: newWhitelistCache()}
		m.states[serverID] = st
	}
	return st
}

// requireServer verifies the server is registered.
func (m *WhitelistManager) requireServer(ctx context.Context, serverID string) error {
	_, err := m.store.GetServer(ctx, serverID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s: %w", serverID, domain.ErrUnknownServer)
	}
	return err
}

// hydrate restores cache and pending queue from the store on cold start.
// Must be called with st.mu held.
func (m *WhitelistManager) hydrate(ctx context.Context, serverID string, st *whitelistState) error {
	if st.hydrated {
		return nil
	}

	snap, err := m.store.ReadSnapshot(ctx, serverID, domain.ListTypeWhitelist)
	switch {
	case err == nil:
		var entries []domain.WhitelistEntry
		if err := json.Unmarshal(snap, &entries); err != nil {
			return fmt.Errorf("decoding whitelist snapshot for %s: %w", serverID, err)
		}
		st.cache.replace(entries)
	case errors.Is(err, domain.ErrNotFound):
		// No snapshot yet; the list starts empty.
	default:
		return fmt.Errorf("reading whitelist snapshot for %s: %w", serverID, err)
	}

	records, err := m.store.ListPendingOps(ctx, serverID, domain.ListTypeWhitelist)
	if err != nil {
		return fmt.Errorf("reading pending whitelist ops for %s: %w", serverID, err)
	}
	st.pending = st.pending[:0]
	for _, rec := range records {
		var op domain.WhitelistOp
		if err := json.Unmarshal(rec.Payload, &op); err != nil {
			return fmt.Errorf("decoding pending whitelist op %d for %s: %w", rec.Seq, serverID, err)
		}
		st.pending = append(st.pending, op)
	}

	st.hydrated = true
	return nil
}

// persistSnapshot writes the current cache state through to the store.
// Must be called with st.mu held.
func (m *WhitelistManager) persistSnapshot(ctx context.Context, serverID string, st *whitelistState) error {
	data, err := json.Marshal(st.cache.snapshot())
	if err != nil {
		return fmt.Errorf("encoding whitelist snapshot for %s: %w", serverID, err)
	}
	if err := m.store.WriteSnapshot(ctx, serverID, domain.ListTypeWhitelist, data); err != nil {
		return fmt.Errorf("writing whitelist snapshot for %s: %w", serverID, err)
	}
	return nil
}

// persistPending writes the whole pending queue through to the store.
// Must be called with st.mu held.
func (m *WhitelistManager) persistPending(ctx context.Context, serverID string, st *whitelistState) error {
	payloads := make([]json.RawMessage, 0, len(st.pending))
	for _, op := range st.pending {
		data, err := json.Marshal(op)
		if err != nil {
			return fmt.Errorf("encoding pending whitelist op for %s: %w", serverID, err)
		}
		payloads = append(payloads, data)
	}
	if err := m.store.ReplacePendingOps(ctx, serverID, domain.ListTypeWhitelist, payloads); err != nil {
		return fmt.Errorf("persisting pending whitelist ops for %s: %w", serverID, err)
	}
	return nil
}

// Add requests that a player be whitelisted. A true result means the
// mutation was either applied remotely or durably queued; only persistence
// and validation failures surface as errors.
func (m *WhitelistManager) Add(ctx context.Context, serverID, playerID, playerName, executor, reason string) (bool, error) {
	return m.mutate(ctx, serverID, domain.WhitelistOp{
		Type:       domain.WhitelistOpAdd,
		PlayerID:   playerID,
		PlayerName: playerName,
		Reason:     reason,
		Executor:   executor,
		Timestamp:  time.Now().UTC(),
	})
}

// Remove requests that a player be removed from the whitelist.
func (m *WhitelistManager) Remove(ctx context.Context, serverID, playerID, executor, reason string) (bool, error) {
	return m.mutate(ctx, serverID, domain.WhitelistOp{
		Type:      domain.WhitelistOpRemove,
		PlayerID:  playerID,
		Reason:    reason,
		Executor:  executor,
		Timestamp: time.Now().UTC(),
	})
}

// mutate runs the apply-or-queue protocol for one operation.
func (m *WhitelistManager) mutate(ctx context.Context, serverID string, op domain.WhitelistOp) (bool, error) {
	if err := m.requireServer(ctx, serverID); err != nil {
		return false, err
	}
	st := m.state(serverID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := m.hydrate(ctx, serverID, st); err != nil {
		return false, err
	}

	operation := "whitelist_" + string(op.Type)
	br, ok := m.bridges.Resolve(serverID)
	if ok && br.IsReachable() && br.HasCapability(domain.CapabilityWhitelist) {
		applied, err := applyWhitelistRemote(ctx, br, op)
		switch {
		case err != nil:
			m.log.WarnContext(ctx, "remote whitelist op failed, queuing",
				"server", serverID, "type", op.Type, "player", op.PlayerID, "error", err)
			m.recorder.Record(ctx, audit.NewRecord(op.Executor, serverID, operation, op, domain.AuditResultError, err.Error()))
		case applied:
			st.cache.apply(serverID, op)
			if err := m.persistSnapshot(ctx, serverID, st); err != nil {
				return false, err
			}
			m.recorder.Record(ctx, audit.NewRecord(op.Executor, serverID, operation, op, domain.AuditResultSuccess, ""))
			return true, nil
		default:
			m.recorder.Record(ctx, audit.NewRecord(op.Executor, serverID, operation, op, domain.AuditResultCached, errRemoteRejected.Error()))
		}
	} else {
		m.recorder.Record(ctx, audit.NewRecord(op.Executor, serverID, operation, op, domain.AuditResultCached, ""))
	}

	// Server offline, incapable, or the attempt failed: record the intent.
	// The queue is not committed until it is durable, so a persistence
	// failure rolls the in-memory queue back to its prior state.
	prior := st.pending
	st.pending = CompactWhitelist(st.pending, op)
	if err := m.persistPending(ctx, serverID, st); err != nil {
		st.pending = prior
		return false, err
	}
	return true, nil
}

// List returns a copy of the cached whitelist.
func (m *WhitelistManager) List(ctx context.Context, serverID string) ([]domain.WhitelistEntry, error) {
	if err := m.requireServer(ctx, serverID); err != nil {
		return nil, err
	}
	st := m.state(serverID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := m.hydrate(ctx, serverID, st); err != nil {
		return nil, err
	}
	return st.cache.snapshot(), nil
}

// IsWhitelisted reports whether a player is currently allowed, taking
// pending intent into account: a queued add counts as whitelisted, a queued
// remove as not.
func (m *WhitelistManager) IsWhitelisted(ctx context.Context, serverID, playerID string) (bool, error) {
	if err := m.requireServer(ctx, serverID); err != nil {
		return false, err
	}
	st := m.state(serverID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := m.hydrate(ctx, serverID, st); err != nil {
		return false, err
	}
	for _, op := range st.pending {
		if op.PlayerID == playerID {
			return op.Type == domain.WhitelistOpAdd, nil
		}
	}
	return st.cache.has(playerID), nil
}

// Pending returns a copy of the pending queue in enqueue order.
func (m *WhitelistManager) Pending(ctx context.Context, serverID string) ([]domain.WhitelistOp, error) {
	if err := m.requireServer(ctx, serverID); err != nil {
		return nil, err
	}
	st := m.state(serverID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := m.hydrate(ctx, serverID, st); err != nil {
		return nil, err
	}
	return append([]domain.WhitelistOp(nil), st.pending...), nil
}

// Status rebuilds the disposable sync status view for a server.
func (m *WhitelistManager) Status(ctx context.Context, serverID string) (*domain.SyncStatus, error) {
	if err := m.requireServer(ctx, serverID); err != nil {
		return nil, err
	}
	st := m.state(serverID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := m.hydrate(ctx, serverID, st); err != nil {
		return nil, err
	}
	return &domain.SyncStatus{
		ServerID:          serverID,
		ListType:          domain.ListTypeWhitelist,
		LastSync:          st.lastSync,
		PendingOperations: len(st.pending),
		SyncErrors:        append([]string(nil), st.lastErrors...),
		IsOnline:          m.bridges.Reachable(serverID),
		CacheVersion:      st.cache.version,
	}, nil
}

// SyncFromServer pulls the authoritative whitelist and replaces the cache.
func (m *WhitelistManager) SyncFromServer(ctx context.Context, serverID string) error {
	if err := m.requireServer(ctx, serverID); err != nil {
		return err
	}
	st := m.state(serverID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := m.hydrate(ctx, serverID, st); err != nil {
		return err
	}
	return m.pullLocked(ctx, serverID, st)
}

func (m *WhitelistManager) pullLocked(ctx context.Context, serverID string, st *whitelistState) error {
	br, ok := m.bridges.Resolve(serverID)
	if !ok || !br.IsReachable() || !br.HasCapability(domain.CapabilityWhitelist) {
		st.lastErrors = []string{domain.ErrServerUnreachable.Error()}
		return fmt.Errorf("pull whitelist for %s: %w", serverID, domain.ErrServerUnreachable)
	}

	players, err := fetchWhitelistRemote(ctx, br)
	if err != nil {
		// Stale-but-available beats unavailable: the prior cache stays.
		st.lastErrors = []string{err.Error()}
		return fmt.Errorf("pull whitelist for %s: %w", serverID, err)
	}

	entries := make([]domain.WhitelistEntry, 0, len(players))
	for _, p := range players {
		entries = append(entries, remotePlayerEntry(serverID, p))
	}
	st.cache.replace(entries)
	if err := m.persistSnapshot(ctx, serverID, st); err != nil {
		return err
	}
	st.lastSync = time.Now().UTC()
	st.lastErrors = nil
	return nil
}

// SyncToServer pushes local-only deltas to the server: targets present
// locally but absent remotely are added, targets present remotely but
// absent locally are removed. Individual failures do not abort the batch.
func (m *WhitelistManager) SyncToServer(ctx context.Context, serverID string) error {
	if err := m.requireServer(ctx, serverID); err != nil {
		return err
	}
	st := m.state(serverID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := m.hydrate(ctx, serverID, st); err != nil {
		return err
	}

	br, ok := m.bridges.Resolve(serverID)
	if !ok || !br.IsReachable() || !br.HasCapability(domain.CapabilityWhitelist) {
		return fmt.Errorf("push whitelist for %s: %w", serverID, domain.ErrServerUnreachable)
	}

	players, err := fetchWhitelistRemote(ctx, br)
	if err != nil {
		return fmt.Errorf("push whitelist for %s: %w", serverID, err)
	}
	remote := make(map[string]bool, len(players))
	for _, p := range players {
		remote[p.ID] = true
	}

	now := time.Now().UTC()
	var errs error
	for _, e := range st.cache.snapshot() {
		if remote[e.PlayerID] {
			continue
		}
		op := domain.WhitelistOp{
			Type:       domain.WhitelistOpAdd,
			PlayerID:   e.PlayerID,
			PlayerName: e.PlayerName,
			Reason:     e.Reason,
			Executor:   e.AddedBy,
			Timestamp:  now,
		}
		if applied, err := applyWhitelistRemote(ctx, br, op); err != nil || !applied {
			if err == nil {
				err = errRemoteRejected
			}
			errs = multierr.Append(errs, fmt.Errorf("push add %s: %w", e.PlayerID, err))
		}
	}
	for _, p := range players {
		if st.cache.has(p.ID) {
			continue
		}
		op := domain.WhitelistOp{
			Type:      domain.WhitelistOpRemove,
			PlayerID:  p.ID,
			Executor:  "system",
			Timestamp: now,
		}
		if applied, err := applyWhitelistRemote(ctx, br, op); err != nil || !applied {
			if err == nil {
				err = errRemoteRejected
			}
			errs = multierr.Append(errs, fmt.Errorf("push remove %s: %w", p.ID, err))
		}
	}
	st.lastErrors = errorStrings(errs)
	return errs
}

// ProcessPending drains the queue: each op is attempted in enqueue order,
// applied locally and dequeued on success, left queued on failure. The pass
// always runs to completion and persists the reduced queue.
func (m *WhitelistManager) ProcessPending(ctx context.Context, serverID string) error {
	if err := m.requireServer(ctx, serverID); err != nil {
		return err
	}
	st := m.state(serverID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := m.hydrate(ctx, serverID, st); err != nil {
		return err
	}
	return m.drainLocked(ctx, serverID, st)
}

func (m *WhitelistManager) drainLocked(ctx context.Context, serverID string, st *whitelistState) error {
	if len(st.pending) == 0 {
		return nil
	}
	br, ok := m.bridges.Resolve(serverID)
	if !ok || !br.IsReachable() || !br.HasCapability(domain.CapabilityWhitelist) {
		// Nothing to attempt; the queue stays as-is.
		return nil
	}

	var errs error
	remaining := make([]domain.WhitelistOp, 0, len(st.pending))
	for _, op := range st.pending {
		applied, err := applyWhitelistRemote(ctx, br, op)
		if err != nil || !applied {
			if err == nil {
				err = errRemoteRejected
			}
			remaining = append(remaining, op)
			errs = multierr.Append(errs, fmt.Errorf("whitelist %s %s: %w", op.Type, op.PlayerID, err))
			continue
		}
		st.cache.apply(serverID, op)
		m.recorder.Record(ctx, audit.NewRecord(op.Executor, serverID, "whitelist_"+string(op.Type), op, domain.AuditResultSuccess, ""))
	}

	st.pending = remaining
	if err := m.persistPending(ctx, serverID, st); err != nil {
		return multierr.Append(errs, err)
	}
	if err := m.persistSnapshot(ctx, serverID, st); err != nil {
		return multierr.Append(errs, err)
	}
	st.lastErrors = errorStrings(errs)
	return errs
}

// ForceSync runs the full bidirectional protocol: pull first, so the drain
// applies against the latest known remote state, then drain.
func (m *WhitelistManager) ForceSync(ctx context.Context, serverID string) error {
	if err := m.requireServer(ctx, serverID); err != nil {
		return err
	}
	st := m.state(serverID)
	if !st.syncing.CompareAndSwap(false, true) {
		return domain.ErrSyncInProgress
	}
	defer st.syncing.Store(false)

	st.mu.Lock()
	defer st.mu.Unlock()
	if err := m.hydrate(ctx, serverID, st); err != nil {
		return err
	}
	if err := m.pullLocked(ctx, serverID, st); err != nil {
		return err
	}
	return m.drainLocked(ctx, serverID, st)
}

// RunSyncPass is the periodic entry point driven by the scheduler:
// drain pending, then pull fresh state. A pass already running for the
// server returns ErrSyncInProgress so the caller can skip, not wait.
func (m *WhitelistManager) RunSyncPass(ctx context.Context, serverID string) error {
	if err := m.requireServer(ctx, serverID); err != nil {
		return err
	}
	st := m.state(serverID)
	if !st.syncing.CompareAndSwap(false, true) {
		return domain.ErrSyncInProgress
	}
	defer st.syncing.Store(false)

	st.mu.Lock()
	defer st.mu.Unlock()
	if err := m.hydrate(ctx, serverID, st); err != nil {
		return err
	}
	var errs error
	if err := m.drainLocked(ctx, serverID, st); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := m.pullLocked(ctx, serverID, st); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}
