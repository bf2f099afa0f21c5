package storage

import (
	"context"
	"encoding/json"

	"github.com/mochilink/mochi-sync/internal/domain"
)

// Storage defines the interface for the durable coordinator state.
// Implementations must be safe for concurrent use.
//
// The pending-operation log and the list snapshots are the authoritative
// state across restarts; in-memory caches are rebuilt from them. Queue
// writes use replace-whole-queue semantics so that a crash mid-write never
// leaves a partially compacted log.
type Storage interface {
	// Close closes the storage connection.
	Close() error

	// API Keys
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
	CountAPIKeys(ctx context.Context) (int, error)

	// Server registry
	CreateServer(ctx context.Context, server *domain.Server) error
	GetServer(ctx context.Context, id string) (*domain.Server, error)
	ListServers(ctx context.Context) ([]*domain.Server, error)
	UpdateServer(ctx context.Context, server *domain.Server) error
	DeleteServer(ctx context.Context, id string) error

	// Pending operation log, keyed by (server, list type), ordered by
	// enqueue sequence.
	AppendPendingOp(ctx context.Context, serverID string, listType domain.ListType, payload json.RawMessage) error
	ListPendingOps(ctx context.Context, serverID string, listType domain.ListType) ([]*domain.PendingRecord, error)
	ReplacePendingOps(ctx context.Context, serverID string, listType domain.ListType, payloads []json.RawMessage) error
	ClearPendingOps(ctx context.Context, serverID string, listType domain.ListType) error

	// List snapshots: the last known full list state per (server, list
	// type), written as one JSON document. Writes are idempotent upserts.
	WriteSnapshot(ctx context.Context, serverID string, listType domain.ListType, entries json.RawMessage) error
	ReadSnapshot(ctx context.Context, serverID string, listType domain.ListType) (json.RawMessage, error)

	// Audit log
	AppendAudit(ctx context.Context, record *domain.AuditRecord) error
	ListAudit(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditRecord, error)
}
