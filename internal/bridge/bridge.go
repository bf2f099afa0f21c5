// Package bridge defines the capability port through which the coordinator
// talks to individual Minecraft servers. The wire transport behind a handle
// is owned by the connection-management subsystem; this package only defines
// the contract and tracks which servers currently have a live handle.
package bridge

import (
	"context"
	"time"

	"github.com/mochilink/mochi-sync/internal/domain"
)

// RemotePlayer is one whitelist entry as reported by a server.
type RemotePlayer struct {
	ID      string     `json:"id"`
	Name    string     `json:"name,omitempty"`
	AddedBy string     `json:"addedBy,omitempty"`
	AddedAt *time.Time `json:"addedAt,omitempty"`
	Reason  string     `json:"reason,omitempty"`
}

// RemoteBan is one ban record as reported by a server.
type RemoteBan struct {
	Type       domain.BanType `json:"type"`
	Target     string         `json:"target"`
	TargetName string         `json:"targetName,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	BannedBy   string         `json:"bannedBy,omitempty"`
	CreatedAt  *time.Time     `json:"createdAt,omitempty"`
	ExpiresAt  *time.Time     `json:"expiresAt,omitempty"`
	Active     bool           `json:"isActive"`
}

// Bridge is a per-server handle to the remote command surface.
//
// All calls are fallible: a transport fault surfaces as an error, a remote
// refusal as a false result. The sync engine treats both as "the operation
// did not take effect". Reachability and capability checks are cheap local
// reads of the connection state, never network calls.
type Bridge interface {
	IsReachable() bool
	HasCapability(name string) bool
	FetchWhitelist(ctx context.Context) ([]RemotePlayer, error)
	FetchBanList(ctx context.Context) ([]RemoteBan, error)
	ApplyWhitelistOp(ctx context.Context, op domain.WhitelistOp) (bool, error)
	ApplyBanOp(ctx context.Context, op domain.BanOp) (bool, error)
}
