package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/mochilink/mochi-sync/internal/domain"
)

// Store is an in-memory implementation of the storage interface for testing.
type Store struct {
	mu sync.RWMutex

	apiKeys   map[string]*domain.APIKey        // key: id
	servers   map[string]*domain.Server        // key: id
	pending   map[string][]*domain.PendingRecord // key: serverID:listType
	snapshots map[string]json.RawMessage       // key: serverID:listType
	audit     []*domain.AuditRecord
	nextSeq   int64
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		apiKeys:   make(map[string]*domain.APIKey),
		servers:   make(map[string]*domain.Server),
		pending:   make(map[string][]*domain.PendingRecord),
		snapshots: make(map[string]json.RawMessage),
		nextSeq:   1,
	}
}

func (s *Store) Close() error { return nil }

func listKey(serverID string, listType domain.ListType) string {
	return serverID + ":" + string(listType)
}

// ============================================
// API Keys
// ============================================

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apiKeys[key.ID]; ok {
		return domain.ErrAlreadyExists
	}
	k := *key
	s.apiKeys[key.ID] = &k
	return nil
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, key := range s.apiKeys {
		if key.KeyHash == keyHash {
			k := *key
			return &k, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]*domain.APIKey, 0, len(s.apiKeys))
	for _, key := range s.apiKeys {
		k := *key
		keys = append(keys, &k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys, nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apiKeys[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.apiKeys, id)
	return nil
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.apiKeys[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	key.LastUsedAt = &now
	return nil
}

func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.apiKeys), nil
}

// ============================================
// Server registry
// ============================================

func (s *Store) CreateServer(ctx context.Context, server *domain.Server) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.servers[server.ID]; ok {
		return domain.ErrAlreadyExists
	}
	sv := *server
	sv.Capabilities = append([]string(nil), server.Capabilities...)
	s.servers[server.ID] = &sv
	return nil
}

func (s *Store) GetServer(ctx context.Context, id string) (*domain.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	server, ok := s.servers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	sv := *server
	sv.Capabilities = append([]string(nil), server.Capabilities...)
	return &sv, nil
}

func (s *Store) ListServers(ctx context.Context) ([]*domain.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	servers := make([]*domain.Server, 0, len(s.servers))
	for _, server := range s.servers {
		sv := *server
		sv.Capabilities = append([]string(nil), server.Capabilities...)
		servers = append(servers, &sv)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].ID < servers[j].ID })
	return servers, nil
}

func (s *Store) UpdateServer(ctx context.Context, server *domain.Server) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.servers[server.ID]; !ok {
		return domain.ErrNotFound
	}
	sv := *server
	sv.Capabilities = append([]string(nil), server.Capabilities...)
	s.servers[server.ID] = &sv
	return nil
}

func (s *Store) DeleteServer(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.servers[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.servers, id)
	for _, lt := range domain.ListTypes() {
		delete(s.pending, listKey(id, lt))
		delete(s.snapshots, listKey(id, lt))
	}
	return nil
}

// ============================================
// Pending operation log
// ============================================

func (s *Store) AppendPendingOp(ctx context.Context, serverID string, listType domain.ListType, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := listKey(serverID, listType)
	rec := &domain.PendingRecord{
		Seq:       s.nextSeq,
		ServerID:  serverID,
		ListType:  listType,
		Payload:   append(json.RawMessage(nil), payload...),
		CreatedAt: time.Now(),
	}
	s.nextSeq++
	s.pending[key] = append(s.pending[key], rec)
	return nil
}

func (s *Store) ListPendingOps(ctx context.Context, serverID string, listType domain.ListType) ([]*domain.PendingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.pending[listKey(serverID, listType)]
	out := make([]*domain.PendingRecord, 0, len(records))
	for _, rec := range records {
		r := *rec
		r.Payload = append(json.RawMessage(nil), rec.Payload...)
		out = append(out, &r)
	}
	return out, nil
}

func (s *Store) ReplacePendingOps(ctx context.Context, serverID string, listType domain.ListType, payloads []json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := listKey(serverID, listType)
	records := make([]*domain.PendingRecord, 0, len(payloads))
	for _, payload := range payloads {
		records = append(records, &domain.PendingRecord{
			Seq:       s.nextSeq,
			ServerID:  serverID,
			ListType:  listType,
			Payload:   append(json.RawMessage(nil), payload...),
			CreatedAt: time.Now(),
		})
		s.nextSeq++
	}
	s.pending[key] = records
	return nil
}

func (s *Store) ClearPendingOps(ctx context.Context, serverID string, listType domain.ListType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, listKey(serverID, listType))
	return nil
}

// ============================================
// List snapshots
// ============================================

func (s *Store) WriteSnapshot(ctx context.Context, serverID string, listType domain.ListType, entries json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[listKey(serverID, listType)] = append(json.RawMessage(nil), entries...)
	return nil
}

func (s *Store) ReadSnapshot(ctx context.Context, serverID string, listType domain.ListType) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[listKey(serverID, listType)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append(json.RawMessage(nil), snap...), nil
}

// ============================================
// Audit log
// ============================================

func (s *Store) AppendAudit(ctx context.Context, record *domain.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := *record
	rec.Data = append(json.RawMessage(nil), record.Data...)
	s.audit = append(s.audit, &rec)
	return nil
}

func (s *Store) ListAudit(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.AuditRecord, 0)
	// Newest first.
	for i := len(s.audit) - 1; i >= 0; i-- {
		rec := s.audit[i]
		if filter.ServerID != "" && rec.ServerID != filter.ServerID {
			continue
		}
		if filter.Operation != "" && rec.Operation != filter.Operation {
			continue
		}
		if filter.Result != "" && rec.Result != filter.Result {
			continue
		}
		r := *rec
		r.Data = append(json.RawMessage(nil), rec.Data...)
		out = append(out, &r)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
