package sql

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/mochilink/mochi-sync/internal/domain"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// isUniqueViolation checks if an error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return true
	}
	// PostgreSQL
	if strings.Contains(errStr, "duplicate key value violates unique constraint") {
		return true
	}
	return false
}

// wrapUniqueError converts UNIQUE violations to domain.ErrAlreadyExists.
func wrapUniqueError(err error) error {
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// Store implements the storage.Storage interface using SQL.
type Store struct {
	db     *sqlx.DB
	driver string
}

// New creates a new SQL store.
func New(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// Run migrations
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ============================================
// API Keys
// ============================================

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, created_at, last_used_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedAt, key.LastUsedAt)
	return wrapUniqueError(err)
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	var key domain.APIKey
	err := s.db.GetContext(ctx, &key,
		`SELECT id, name, key_hash, key_prefix, created_at, last_used_at FROM api_keys WHERE key_hash = $1`, keyHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return &key, err
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	var keys []*domain.APIKey
	err := s.db.SelectContext(ctx, &keys,
		`SELECT id, name, key_hash, key_prefix, created_at, last_used_at FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, time.Now(), id)
	return err
}

func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM api_keys`)
	return count, err
}

// ============================================
// Server registry
// ============================================

// serverRow maps the servers table; capabilities are stored as a JSON array.
type serverRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Address      string    `db:"address"`
	Capabilities string    `db:"capabilities"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r *serverRow) toDomain() (*domain.Server, error) {
	server := &domain.Server{
		ID:        r.ID,
		Name:      r.Name,
		Address:   r.Address,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Capabilities != "" {
		if err := json.Unmarshal([]byte(r.Capabilities), &server.Capabilities); err != nil {
			return nil, fmt.Errorf("parsing capabilities for server %s: %w", r.ID, err)
		}
	}
	return server, nil
}

func marshalCapabilities(caps []string) (string, error) {
	if caps == nil {
		caps = []string{}
	}
	data, err := json.Marshal(caps)
	if err != nil {
		return "", fmt.Errorf("marshaling capabilities: %w", err)
	}
	return string(data), nil
}

func (s *Store) CreateServer(ctx context.Context, server *domain.Server) error {
	caps, err := marshalCapabilities(server.Capabilities)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO servers (id, name, address, capabilities, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		server.ID, server.Name, server.Address, caps, server.CreatedAt, server.UpdatedAt)
	return wrapUniqueError(err)
}

func (s *Store) GetServer(ctx context.Context, id string) (*domain.Server, error) {
	var row serverRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, name, address, capabilities, created_at, updated_at FROM servers WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

func (s *Store) ListServers(ctx context.Context) ([]*domain.Server, error) {
	var rows []serverRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, name, address, capabilities, created_at, updated_at FROM servers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	servers := make([]*domain.Server, 0, len(rows))
	for i := range rows {
		server, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}
	return servers, nil
}

func (s *Store) UpdateServer(ctx context.Context, server *domain.Server) error {
	caps, err := marshalCapabilities(server.Capabilities)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE servers SET name = $1, address = $2, capabilities = $3, updated_at = $4 WHERE id = $5`,
		server.Name, server.Address, caps, server.UpdatedAt, server.ID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteServer(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM servers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM pending_operations WHERE server_id = $1`, id)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE server_id = $1`, id)
	return err
}

// ============================================
// Pending operation log
// ============================================

func (s *Store) AppendPendingOp(ctx context.Context, serverID string, listType domain.ListType, payload json.RawMessage) error {
	// Sequence assignment is safe without locking: each (server, list type)
	// queue has exactly one logical writer.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_operations (server_id, list_type, seq, payload, created_at)
		 SELECT $1, $2, COALESCE(MAX(seq), 0) + 1, $3, $4
		 FROM pending_operations WHERE server_id = $5 AND list_type = $6`,
		serverID, string(listType), string(payload), time.Now(), serverID, string(listType))
	return err
}

func (s *Store) ListPendingOps(ctx context.Context, serverID string, listType domain.ListType) ([]*domain.PendingRecord, error) {
	type row struct {
		Seq       int64     `db:"seq"`
		ServerID  string    `db:"server_id"`
		ListType  string    `db:"list_type"`
		Payload   string    `db:"payload"`
		CreatedAt time.Time `db:"created_at"`
	}
	var rows []row
	err := s.db.SelectContext(ctx, &rows,
		`SELECT seq, server_id, list_type, payload, created_at FROM pending_operations
		 WHERE server_id = $1 AND list_type = $2 ORDER BY seq`,
		serverID, string(listType))
	if err != nil {
		return nil, err
	}
	records := make([]*domain.PendingRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, &domain.PendingRecord{
			Seq:       r.Seq,
			ServerID:  r.ServerID,
			ListType:  domain.ListType(r.ListType),
			Payload:   json.RawMessage(r.Payload),
			CreatedAt: r.CreatedAt,
		})
	}
	return records, nil
}

func (s *Store) ReplacePendingOps(ctx context.Context, serverID string, listType domain.ListType, payloads []json.RawMessage) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM pending_operations WHERE server_id = $1 AND list_type = $2`,
		serverID, string(listType))
	if err != nil {
		return err
	}
	now := time.Now()
	for i, payload := range payloads {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pending_operations (server_id, list_type, seq, payload, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			serverID, string(listType), int64(i+1), string(payload), now)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ClearPendingOps(ctx context.Context, serverID string, listType domain.ListType) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_operations WHERE server_id = $1 AND list_type = $2`,
		serverID, string(listType))
	return err
}

// ============================================
// List snapshots
// ============================================

func (s *Store) WriteSnapshot(ctx context.Context, serverID string, listType domain.ListType, entries json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (server_id, list_type, entries, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (server_id, list_type) DO UPDATE SET entries = $5, updated_at = $6`,
		serverID, string(listType), string(entries), time.Now(), string(entries), time.Now())
	return err
}

func (s *Store) ReadSnapshot(ctx context.Context, serverID string, listType domain.ListType) (json.RawMessage, error) {
	var entries string
	err := s.db.GetContext(ctx, &entries,
		`SELECT entries FROM snapshots WHERE server_id = $1 AND list_type = $2`,
		serverID, string(listType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(entries), nil
}

// ============================================
// Audit log
// ============================================

func (s *Store) AppendAudit(ctx context.Context, record *domain.AuditRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, executor, server_id, operation, data, result, error_message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, record.Executor, record.ServerID, record.Operation,
		string(record.Data), record.Result, record.ErrorMessage, record.CreatedAt)
	return wrapUniqueError(err)
}

func (s *Store) ListAudit(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditRecord, error) {
	type row struct {
		ID           string         `db:"id"`
		Executor     string         `db:"executor"`
		ServerID     string         `db:"server_id"`
		Operation    string         `db:"operation"`
		Data         sql.NullString `db:"data"`
		Result       string         `db:"result"`
		ErrorMessage sql.NullString `db:"error_message"`
		CreatedAt    time.Time      `db:"created_at"`
	}

	query := `SELECT id, executor, server_id, operation, data, result, error_message, created_at FROM audit_log`
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.ServerID != "" {
		add("server_id = $%d", filter.ServerID)
	}
	if filter.Operation != "" {
		add("operation = $%d", filter.Operation)
	}
	if filter.Result != "" {
		add("result = $%d", filter.Result)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	records := make([]*domain.AuditRecord, 0, len(rows))
	for _, r := range rows {
		rec := &domain.AuditRecord{
			ID:           r.ID,
			Executor:     r.Executor,
			ServerID:     r.ServerID,
			Operation:    r.Operation,
			Result:       r.Result,
			ErrorMessage: r.ErrorMessage.String,
			CreatedAt:    r.CreatedAt,
		}
		if r.Data.Valid && r.Data.String != "" {
			rec.Data = json.RawMessage(r.Data.String)
		}
		records = append(records, rec)
	}
	return records, nil
}
