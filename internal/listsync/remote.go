package listsync

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"

	"github.com/mochilink/mochi-sync/internal/bridge"
	"github.com/mochilink/mochi-sync/internal/domain"
)

// errRemoteRejected marks a bridge call that returned false: the server saw
// the request and declined it. Distinct from a transport fault, but treated
// the same way (the operation did not take effect).
var errRemoteRejected = errors.New("remote rejected operation")

// remoteBackoff is the retry policy for individual bridge calls: a couple
// of quick fibonacci-spaced retries before the engine falls back to queuing.
func remoteBackoff() retry.Backoff {
	return retry.WithMaxRetries(2, retry.NewFibonacci(200*time.Millisecond))
}

// applyWhitelistRemote applies one whitelist op through the bridge,
// retrying transport faults. A false result is not retried; the remote made
// a decision.
func applyWhitelistRemote(ctx context.Context, br bridge.Bridge, op domain.WhitelistOp) (bool, error) {
	var applied bool
	err := retry.Do(ctx, remoteBackoff(), func(ctx context.Context) error {
		ok, err := br.ApplyWhitelistOp(ctx, op)
		if err != nil {
			return retry.RetryableError(err)
		}
		applied = ok
		return nil
	})
	return applied, err
}

// applyBanRemote applies one ban op through the bridge, retrying transport
// faults.
func applyBanRemote(ctx context.Context, br bridge.Bridge, op domain.BanOp) (bool, error) {
	var applied bool
	err := retry.Do(ctx, remoteBackoff(), func(ctx context.Context) error {
		ok, err := br.ApplyBanOp(ctx, op)
		if err != nil {
			return retry.RetryableError(err)
		}
		applied = ok
		return nil
	})
	return applied, err
}

// fetchWhitelistRemote pulls the authoritative whitelist, retrying
// transport faults.
func fetchWhitelistRemote(ctx context.Context, br bridge.Bridge) ([]bridge.RemotePlayer, error) {
	var players []bridge.RemotePlayer
	err := retry.Do(ctx, remoteBackoff(), func(ctx context.Context) error {
		p, err := br.FetchWhitelist(ctx)
		if err != nil {
			return retry.RetryableError(err)
		}
		players = p
		return nil
	})
	return players, err
}

// fetchBanListRemote pulls the authoritative ban list, retrying transport
// faults.
func fetchBanListRemote(ctx context.Context, br bridge.Bridge) ([]bridge.RemoteBan, error) {
	var bans []bridge.RemoteBan
	err := retry.Do(ctx, remoteBackoff(), func(ctx context.Context) error {
		b, err := br.FetchBanList(ctx)
		if err != nil {
			return retry.RetryableError(err)
		}
		bans = b
		return nil
	})
	return bans, err
}

// remotePlayerEntry maps a bridge whitelist record into the local shape.
func remotePlayerEntry(serverID string, p bridge.RemotePlayer) domain.WhitelistEntry {
	e := domain.WhitelistEntry{
		ServerID:   serverID,
		PlayerID:   p.ID,
		PlayerName: p.Name,
		AddedBy:    p.AddedBy,
		Reason:     p.Reason,
	}
	if p.AddedAt != nil {
		e.AddedAt = *p.AddedAt
	} else {
		e.AddedAt = time.Now().UTC()
	}
	return e
}

// remoteBanEntry maps a bridge ban record into the local shape.
func remoteBanEntry(serverID string, b bridge.RemoteBan) domain.BanEntry {
	e := domain.BanEntry{
		ID:         domain.BanID(serverID, b.Type, b.Target),
		ServerID:   serverID,
		BanType:    b.Type,
		Target:     b.Target,
		TargetName: b.TargetName,
		Reason:     b.Reason,
		BannedBy:   b.BannedBy,
		ExpiresAt:  b.ExpiresAt,
		IsActive:   b.Active,
	}
	if b.CreatedAt != nil {
		e.BannedAt = *b.CreatedAt
	} else {
		e.BannedAt = time.Now().UTC()
	}
	return e
}

// errorStrings flattens an aggregated error into status strings.
func errorStrings(err error) []string {
	if err == nil {
		return nil
	}
	errs := multierr.Errors(err)
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Error())
	}
	return out
}
