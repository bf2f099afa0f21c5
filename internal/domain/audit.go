package domain

import (
	"encoding/json"
	"time"
)

// Audit results. Every attempted mutation produces exactly one record:
// applied remotely (success), durably queued for later (cached), or failed
// with an error that was still recovered by queuing (error).
const (
	AuditResultSuccess = "success"
	AuditResultCached  = "cached"
	AuditResultError   = "error"
)

// AuditRecord is one structured record of an attempted mutation and its
// outcome. Operation is "<list>_<type>", e.g. "whitelist_add" or "ban_unban".
type AuditRecord struct {
	ID           string          `json:"id" db:"id"`
	Executor     string          `json:"executor" db:"executor"`
	ServerID     string          `json:"serverId" db:"server_id"`
	Operation    string          `json:"operation" db:"operation"`
	Data         json.RawMessage `json:"operationData,omitempty" db:"data"`
	Result       string          `json:"result" db:"result"`
	ErrorMessage string          `json:"errorMessage,omitempty" db:"error_message"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
}

// AuditFilter narrows an audit query. Zero values match everything.
type AuditFilter struct {
	ServerID  string
	Operation string
	Result    string
	Limit     int
}
