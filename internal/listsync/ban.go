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

// SweepExecutor and SweepReason attribute expiry-originated unbans in audit
// records and remote calls.
const (
	SweepExecutor = "system"
	SweepReason   = "Ban expired"
)

// banState is the per-server ban state, mirroring whitelistState.
type banState struct {
	mu         sync.Mutex
	cache      *banCache
	pending    []domain.BanOp
	hydrated   bool
	lastSync   time.Time
	lastErrors []string
	syncing    atomic.Bool
}

// BanManager owns the ban caches and pending logs for all servers, runs the
// reconciliation protocols, and sweeps expired bans.
type BanManager struct {
	store    storage.Storage
	bridges  *bridge.Registry
	recorder audit.Recorder
	log      *slog.Logger

	mu     sync.Mutex
	states map[string]*banState
}

// NewBanManager creates a ban manager.
func NewBanManager(store storage.Storage, bridges *bridge.Registry, recorder audit.Recorder, log *slog.Logger) *BanManager {
	return &BanManager{
		store:    store,
		bridges:  bridges,
		recorder: recorder,
		log:      log.With("component", "bans"),
		states:   make(map[string]*banState),
	}
}

func (m *BanManager) state(serverID string) *banState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[serverID]
	if !ok {
		st = &banState{cache: newBanCache()}
		m.states[serverID] = st
	}
	return st
}

func (m *BanManager) requireServer(ctx context.Context, serverID string) error {
	_, err := m.store.GetServer(ctx, serverID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s: %w", serverID, domain.ErrUnknownServer)
	}
	return err
}

// hydrate restores cache and pending queue from the store on cold start.
// Must be called with st.mu held.
func (m *BanManager) hydrate(ctx context.Context, serverID string, st *banState) error {
	if st.hydrated {
		return nil
	}

	snap, err := m.store.ReadSnapshot(ctx, serverID, domain.ListTypeBan)
	switch {
	case err == nil:
		var entries []domain.BanEntry
		if err := json.Unmarshal(snap, &entries); err != nil {
			return fmt.Errorf("decoding ban snapshot for %s: %w", serverID, err)
		}
		st.cache.replace(entries)
	case errors.Is(err, domain.ErrNotFound):
	default:
		return fmt.Errorf("reading ban snapshot for %s: %w", serverID, err)
	}

	records, err := m.store.ListPendingOps(ctx, serverID, domain.ListTypeBan)
	if err != nil {
		return fmt.Errorf("reading pending ban ops for %s: %w", serverID, err)
	}
	st.pending = st.pending[:0]
	for _, rec := range records {
		var op domain.BanOp
		if err := json.Unmarshal(rec.Payload, &op); err != nil {
			return fmt.Errorf("decoding pending ban op %d for %s: %w", rec.Seq, serverID, err)
		}
		st.pending = append(st.pending, op)
	}

	st.hydrated = true
	return nil
}

func (m *BanManager) persistSnapshot(ctx context.Context, serverID string, st *banState) error {
	data, err := json.Marshal(st.cache.snapshot())
	if err != nil {
		return fmt.Errorf("encoding ban snapshot for %s: %w", serverID, err)
	}
	if err := m.store.WriteSnapshot(ctx, serverID, domain.ListTypeBan, data); err != nil {
		return fmt.Errorf("writing ban snapshot for %s: %w", serverID, err)
	}
	return nil
}

func (m *BanManager) persistPending(ctx context.Context, serverID string, st *banState) error {
	payloads := make([]json.RawMessage, 0, len(st.pending))
	for _, op := range st.pending {
		data, err := json.Marshal(op)
		if err != nil {
			return fmt.Errorf("encoding pending ban op for %s: %w", serverID, err)
		}
		payloads = append(payloads, data)
	}
	if err := m.store.ReplacePendingOps(ctx, serverID, domain.ListTypeBan, payloads); err != nil {
		return fmt.Errorf("persisting pending ban ops for %s: %w", serverID, err)
	}
	return nil
}

// Ban requests that a target be banned. Duration zero means permanent.
// A true result means applied remotely or durably queued.
func (m *BanManager) Ban(ctx context.Context, serverID string, banType domain.BanType, target, targetName, reason, executor string, duration time.Duration) (bool, error) {
	return m.mutate(ctx, serverID, domain.BanOp{
		Type:       domain.BanOpBan,
		BanType:    banType,
		Target:     target,
		TargetName: targetName,
		Reason:     reason,
		Executor:   executor,
		Timestamp:  time.Now().UTC(),
		Duration:   duration,
	})
}

// Unban requests that a target's ban be lifted.
func (m *BanManager) Unban(ctx context.Context, serverID string, banType domain.BanType, target, reason, executor string) (bool, error) {
	return m.mutate(ctx, serverID, domain.BanOp{
		Type:      domain.BanOpUnban,
		BanType:   banType,
		Target:    target,
		Reason:    reason,
		Executor:  executor,
		Timestamp: time.Now().UTC(),
	})
}

// mutate runs the apply-or-queue protocol for one ban operation.
func (m *BanManager) mutate(ctx context.Context, serverID string, op domain.BanOp) (bool, error) {
	if err := m.requireServer(ctx, serverID); err != nil {
		return false, err
	}
	st := m.state(serverID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := m.hydrate(ctx, serverID, st); err != nil {
		return false, err
	}

	operation := "ban_" + string(op.Type)
	br, ok := m.bridges.Resolve(serverID)
	if ok && br.IsReachable() && br.HasCapability(domain.CapabilityBan) {
		applied, err := applyBanRemote(ctx, br, op)
		switch {
		case err != nil:
			m.log.WarnContext(ctx, "remote ban op failed, queuing",
				"server", serverID, "type", op.Type, "target", op.Target, "error", err)
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

	// Not committed until durable: roll the queue back if persistence fails.
	prior := st.pending
	st.pending = CompactBan(st.pending, op)
	if err := m.persistPending(ctx, serverID, st); err != nil {
		st.pending = prior
		return false, err
	}
	return true, nil
}

// List returns a copy of the active cached bans. includeInactive extends
// the view to superseded and lifted records kept as history.
func (m *BanManager) List(ctx context.Context, serverID string, includeInactive bool) ([]domain.BanEntry, error) {
	if err := m.requireServer(ctx, serverID); err != nil {
		return nil, err
	}
	st := m.state(serverID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := m.hydrate(ctx, serverID, st); err != nil {
		return nil, err
	}
	if includeInactive {
		return st.cache.snapshot(), nil
	}
	return st.cache.active(), nil
}

// IsBanned reports whether a target is currently banned, taking pending
// intent and expiry into account: a queued ban counts as banned, a queued
// unban as not, and an active-but-expired record as not.
func (m *BanManager) IsBanned(ctx context.Context, serverID string, banType domain.BanType, target string) (bool, error) {
	if err := m.requireServer(ctx, serverID); err != nil {
		return false, err
	}
	st := m.state(serverID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := m.hydrate(ctx, serverID, st); err != nil {
		return false, err
	}
	key := domain.BanKey(banType, target)
	for _, op := range st.pending {
		if op.Key() == key {
			return op.Type == domain.BanOpBan, nil
		}
	}
	e, ok := st.cache.get(key)
	return ok && e.IsActive && !e.Expired(time.Now().UTC()), nil
}

// Pending returns a copy of the pending queue in enqueue order.
func (m *BanManager) Pending(ctx context.Context, serverID string) ([]domain.BanOp, error) {
	if err := m.requireServer(ctx, serverID); err != nil {
		return nil, err
	}
	st := m.state(serverID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := m.hydrate(ctx, serverID, st); err != nil {
		return nil, err
	}
	return append([]domain.BanOp(nil), st.pending...), nil
}

// Status rebuilds the disposable sync status view for a server.
func (m *BanManager) Status(ctx context.Context, serverID string) (*domain.SyncStatus, error) {
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
		ListType:          domain.ListTypeBan,
		LastSync:          st.lastSync,
		PendingOperations: len(st.pending),
		SyncErrors:        append([]string(nil), st.lastErrors...),
		IsOnline:          m.bridges.Reachable(serverID),
		CacheVersion:      st.cache.version,
	}, nil
}

// SyncFromServer pulls the authoritative ban list and replaces the cache.
func (m *BanManager) SyncFromServer(ctx context.Context, serverID string) error {
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

func (m *BanManager) pullLocked(ctx context.Context, serverID string, st *banState) error {
	br, ok := m.bridges.Resolve(serverID)
	if !ok || !br.IsReachable() || !br.HasCapability(domain.CapabilityBan) {
		st.lastErrors = []string{domain.ErrServerUnreachable.Error()}
		return fmt.Errorf("pull bans for %s: %w", serverID, domain.ErrServerUnreachable)
	}

	bans, err := fetchBanListRemote(ctx, br)
	if err != nil {
		st.lastErrors = []string{err.Error()}
		return fmt.Errorf("pull bans for %s: %w", serverID, err)
	}

	entries := make([]domain.BanEntry, 0, len(bans))
	for _, b := range bans {
		entries = append(entries, remoteBanEntry(serverID, b))
	}
	st.cache.replace(entries)
	if err := m.persistSnapshot(ctx, serverID, st); err != nil {
		return err
	}
	st.lastSync = time.Now().UTC()
	st.lastErrors = nil
	return nil
}

// SyncToServer pushes local-only deltas: active local bans missing remotely
// are applied, active remote bans missing locally are lifted. Individual
// failures do not abort the batch.
func (m *BanManager) SyncToServer(ctx context.Context, serverID string) error {
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
	if !ok || !br.IsReachable() || !br.HasCapability(domain.CapabilityBan) {
		return fmt.Errorf("push bans for %s: %w", serverID, domain.ErrServerUnreachable)
	}

	bans, err := fetchBanListRemote(ctx, br)
	if err != nil {
		return fmt.Errorf("push bans for %s: %w", serverID, err)
	}
	remote := make(map[string]bool, len(bans))
	for _, b := range bans {
		if b.Active {
			remote[domain.BanKey(b.Type, b.Target)] = true
		}
	}

	now := time.Now().UTC()
	var errs error
	for _, e := range st.cache.active() {
		if remote[e.Key()] {
			continue
		}
		op := domain.BanOp{
			Type:       domain.BanOpBan,
			BanType:    e.BanType,
			Target:     e.Target,
			TargetName: e.TargetName,
			Reason:     e.Reason,
			Executor:   e.BannedBy,
			Timestamp:  now,
		}
		if e.ExpiresAt != nil {
			op.Duration = e.ExpiresAt.Sub(now)
		}
		if applied, err := applyBanRemote(ctx, br, op); err != nil || !applied {
			if err == nil {
				err = errRemoteRejected
			}
			errs = multierr.Append(errs, fmt.Errorf("push ban %s: %w", e.Key(), err))
		}
	}
	for _, b := range bans {
		if !b.Active {
			continue
		}
		key := domain.BanKey(b.Type, b.Target)
		if e, ok := st.cache.get(key); ok && e.IsActive {
			continue
		}
		op := domain.BanOp{
			Type:      domain.BanOpUnban,
			BanType:   b.Type,
			Target:    b.Target,
			Executor:  "system",
			Timestamp: now,
		}
		if applied, err := applyBanRemote(ctx, br, op); err != nil || !applied {
			if err == nil {
				err = errRemoteRejected
			}
			errs = multierr.Append(errs, fmt.Errorf("push unban %s: %w", key, err))
		}
	}
	st.lastErrors = errorStrings(errs)
	return errs
}

// ProcessPending drains the queue, mirroring the whitelist drain protocol.
func (m *BanManager) ProcessPending(ctx context.Context, serverID string) error {
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

func (m *BanManager) drainLocked(ctx context.Context, serverID string, st *banState) error {
	if len(st.pending) == 0 {
		return nil
	}
	br, ok := m.bridges.Resolve(serverID)
	if !ok || !br.IsReachable() || !br.HasCapability(domain.CapabilityBan) {
		return nil
	}

	var errs error
	remaining := make([]domain.BanOp, 0, len(st.pending))
	for _, op := range st.pending {
		applied, err := applyBanRemote(ctx, br, op)
		if err != nil || !applied {
			if err == nil {
				err = errRemoteRejected
			}
			remaining = append(remaining, op)
			errs = multierr.Append(errs, fmt.Errorf("ban %s %s: %w", op.Type, op.Target, err))
			continue
		}
		st.cache.apply(serverID, op)
		m.recorder.Record(ctx, audit.NewRecord(op.Executor, serverID, "ban_"+string(op.Type), op, domain.AuditResultSuccess, ""))
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

// ForceSync runs pull then drain, treating the server as the trust anchor
// for diverged state.
func (m *BanManager) ForceSync(ctx context.Context, serverID string) error {
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

// SweepExpired marks every active ban with an expiry at or before now
// inactive, issues a best-effort remote unban when the server is reachable,
// and emits an expiry audit record per ban. Local state is authoritative
// for expiry: a failed remote unban never blocks deactivation.
func (m *BanManager) SweepExpired(ctx context.Context, serverID string) error {
	if err := m.requireServer(ctx, serverID); err != nil {
		return err
	}
	st := m.state(serverID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := m.hydrate(ctx, serverID, st); err != nil {
		return err
	}
	return m.sweepLocked(ctx, serverID, st)
}

// RunSyncPass is the periodic entry point: drain, pull, then sweep.
// A pass already running for the server returns ErrSyncInProgress.
func (m *BanManager) RunSyncPass(ctx context.Context, serverID string) error {
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
	if err := m.sweepLocked(ctx, serverID, st); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

// sweepLocked deactivates expired bans, issues best-effort remote unbans,
// and records one expiry audit entry per ban. Caller holds st.mu.
func (m *BanManager) sweepLocked(ctx context.Context, serverID string, st *banState) error {
	now := time.Now().UTC()
	expired := st.cache.expired(now)
	if len(expired) == 0 {
		return nil
	}

	br, ok := m.bridges.Resolve(serverID)
	reachable := ok && br.IsReachable() && br.HasCapability(domain.CapabilityBan)

	for _, e := range expired {
		st.cache.deactivate(e.Key())
		op := domain.BanOp{
			Type:       domain.BanOpUnban,
			BanType:    e.BanType,
			Target:     e.Target,
			TargetName: e.TargetName,
			Reason:     SweepReason,
			Executor:   SweepExecutor,
			Timestamp:  now,
		}
		if reachable {
			applied, err := applyBanRemote(ctx, br, op)
			switch {
			case err != nil:
				m.log.WarnContext(ctx, "remote unban for expired ban failed",
					"server", serverID, "target", e.Target, "error", err)
			case !applied:
				m.log.WarnContext(ctx, "remote rejected unban for expired ban",
					"server", serverID, "target", e.Target)
			}
		}
		m.recorder.Record(ctx, audit.NewRecord(SweepExecutor, serverID, "ban_unban", op, domain.AuditResultSuccess, ""))
	}

	m.log.InfoContext(ctx, "swept expired bans", "server", serverID, "count", len(expired))
	return m.persistSnapshot(ctx, serverID, st)
}
