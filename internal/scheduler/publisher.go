package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/mochilink/mochi-sync/internal/domain"
	"github.com/mochilink/mochi-sync/internal/listsync"
)

// StatusPublisher mirrors the per-server sync status into a Redis hash after
// each round so sibling subsystems can read it without hitting the API. Hash
// field is the server id, value is a JSON document with both list types.
type StatusPublisher struct {
	client *redis.Client
	key    string
	log    *slog.Logger
}

// NewStatusPublisher creates a publisher writing to the given hash key.
func NewStatusPublisher(client *redis.Client, key string, log *slog.Logger) *StatusPublisher {
	return &StatusPublisher{
		client: client,
		key:    key,
		log:    log.With("component", "status"),
	}
}

type publishedStatus struct {
	ServerID  string               `json:"serverId"`
	IsOnline  bool                 `json:"isOnline"`
	Statuses  []*domain.SyncStatus `json:"statuses"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// Publish writes the current status of every server into the hash. Failures
// are aggregated; a partial publish is not rolled back.
func (p *StatusPublisher) Publish(ctx context.Context, engine *listsync.Engine, servers []*domain.Server) error {
	var errs error
	for _, srv := range servers {
		statuses, err := engine.Statuses(ctx, srv.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("status for %s: %w", srv.ID, err))
			continue
		}
		online := false
		for _, st := range statuses {
			online = online || st.IsOnline
		}
		data, err := json.Marshal(publishedStatus{
			ServerID:  srv.ID,
			IsOnline:  online,
			Statuses:  statuses,
			UpdatedAt: time.Now().UTC(),
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("encoding status for %s: %w", srv.ID, err))
			continue
		}
		if err := p.client.HSet(ctx, p.key, srv.ID, data).Err(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("publishing status for %s: %w", srv.ID, err))
		}
	}
	return errs
}

// Remove deletes a server's field from the hash, for deregistration.
func (p *StatusPublisher) Remove(ctx context.Context, serverID string) error {
	return p.client.HDel(ctx, p.key, serverID).Err()
}
