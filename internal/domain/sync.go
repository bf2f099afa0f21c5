package domain

import (
	"encoding/json"
	"time"
)

// SyncStatus is the derived, disposable view of one server's sync state for
// one list type. It is rebuilt on every sync attempt and is never a source
// of truth.
type SyncStatus struct {
	ServerID          string    `json:"serverId"`
	ListType          ListType  `json:"listType"`
	LastSync          time.Time `json:"lastSync"`
	PendingOperations int       `json:"pendingOperations"`
	SyncErrors        []string  `json:"syncErrors"`
	IsOnline          bool      `json:"isOnline"`
	CacheVersion      uint64    `json:"cacheVersion"`
}

// EngineStats aggregates coordinator-wide counters for introspection.
type EngineStats struct {
	TotalEntries           int      `json:"totalEntries"`
	TotalPendingOperations int      `json:"totalPendingOperations"`
	ServersOnline          int      `json:"serversOnline"`
	ServersKnown           int      `json:"serversKnown"`
	LastSyncErrors         []string `json:"lastSyncErrors"`
}

// PendingRecord is the storage envelope for one queued operation. Payload
// holds the encoded WhitelistOp or BanOp depending on ListType; Seq is
// assigned by the store and preserves enqueue order.
type PendingRecord struct {
	Seq       int64           `json:"seq" db:"seq"`
	ServerID  string          `json:"serverId" db:"server_id"`
	ListType  ListType        `json:"listType" db:"list_type"`
	Payload   json.RawMessage `json:"payload" db:"payload"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
}
