package listsync

import (
	"context"
	"errors"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/mochilink/mochi-sync/internal/audit"
	"github.com/mochilink/mochi-sync/internal/bridge"
	"github.com/mochilink/mochi-sync/internal/domain"
	"github.com/mochilink/mochi-sync/internal/storage"
)

// Engine bundles the whitelist and ban managers behind one entry point for
// the API layer and the scheduler.
type Engine struct {
	Whitelist *WhitelistManager
	Bans      *BanManager

	store   storage.Storage
	bridges *bridge.Registry
}

// New wires an engine over the given store, bridge registry, and audit
// recorder.
func New(store storage.Storage, bridges *bridge.Registry, recorder audit.Recorder, log *slog.Logger) *Engine {
	return &Engine{
		Whitelist: NewWhitelistManager(store, bridges, recorder, log),
		Bans:      NewBanManager(store, bridges, recorder, log),
		store:     store,
		bridges:   bridges,
	}
}

// SyncServer runs a full sync pass for both list types on one server. A
// pass already in flight for a list type is skipped, not an error.
func (e *Engine) SyncServer(ctx context.Context, serverID string) error {
	var errs error
	if err := e.Whitelist.RunSyncPass(ctx, serverID); err != nil && !errors.Is(err, domain.ErrSyncInProgress) {
		errs = multierr.Append(errs, err)
	}
	if err := e.Bans.RunSyncPass(ctx, serverID); err != nil && !errors.Is(err, domain.ErrSyncInProgress) {
		errs = multierr.Append(errs, err)
	}
	return errs
}

// ForceSync pulls then drains both list types, treating the server as the
// trust anchor.
func (e *Engine) ForceSync(ctx context.Context, serverID string) error {
	var errs error
	if err := e.Whitelist.ForceSync(ctx, serverID); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := e.Bans.ForceSync(ctx, serverID); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

// ForceSyncAll force-syncs every registered server. Servers that are
// unreachable or already mid-pass are skipped rather than failing the fleet.
func (e *Engine) ForceSyncAll(ctx context.Context) error {
	servers, err := e.store.ListServers(ctx)
	if err != nil {
		return err
	}

	var errs error
	for _, srv := range servers {
		err := e.ForceSync(ctx, srv.ID)
		if err != nil && !errors.Is(err, domain.ErrServerUnreachable) && !errors.Is(err, domain.ErrSyncInProgress) {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// AllStatuses returns the sync statuses of every registered server, keyed by
// server id.
func (e *Engine) AllStatuses(ctx context.Context) (map[string][]*domain.SyncStatus, error) {
	servers, err := e.store.ListServers(ctx)
	if err != nil {
		return nil, err
	}

	all := make(map[string][]*domain.SyncStatus, len(servers))
	for _, srv := range servers {
		statuses, err := e.Statuses(ctx, srv.ID)
		if err != nil {
			return nil, err
		}
		all[srv.ID] = statuses
	}
	return all, nil
}

// SweepServer expires due bans on one server.
func (e *Engine) SweepServer(ctx context.Context, serverID string) error {
	return e.Bans.SweepExpired(ctx, serverID)
}

// Statuses returns the sync status of both list types for a server.
func (e *Engine) Statuses(ctx context.Context, serverID string) ([]*domain.SyncStatus, error) {
	wl, err := e.Whitelist.Status(ctx, serverID)
	if err != nil {
		return nil, err
	}
	bans, err := e.Bans.Status(ctx, serverID)
	if err != nil {
		return nil, err
	}
	return []*domain.SyncStatus{wl, bans}, nil
}

// Stats aggregates engine-wide counters across all registered servers.
func (e *Engine) Stats(ctx context.Context) (*domain.EngineStats, error) {
	servers, err := e.store.ListServers(ctx)
	if err != nil {
		return nil, err
	}

	stats := &domain.EngineStats{ServersKnown: len(servers)}
	for _, srv := range servers {
		if e.bridges.Reachable(srv.ID) {
			stats.ServersOnline++
		}
		for _, status := range []func(context.Context, string) (*domain.SyncStatus, error){
			e.Whitelist.Status,
			e.Bans.Status,
		} {
			st, err := status(ctx, srv.ID)
			if err != nil {
				return nil, err
			}
			stats.TotalPendingOperations += st.PendingOperations
			stats.LastSyncErrors = append(stats.LastSyncErrors, st.SyncErrors...)
		}

		entries, err := e.Whitelist.List(ctx, srv.ID)
		if err != nil {
			return nil, err
		}
		stats.TotalEntries += len(entries)
		bans, err := e.Bans.List(ctx, srv.ID, false)
		if err != nil {
			return nil, err
		}
		stats.TotalEntries += len(bans)
	}
	return stats, nil
}
