package domain

import "time"

// WhitelistEntry represents a single whitelisted player on one server.
// Identity is (ServerID, PlayerID); a successful remove or a pull from the
// server that no longer contains the player destroys the entry.
type WhitelistEntry struct {
	ServerID   string    `json:"serverId" db:"server_id"`
	PlayerID   string    `json:"playerId" db:"player_id"`
	PlayerName string    `json:"playerName,omitempty" db:"player_name"`
	AddedBy    string    `json:"addedBy" db:"added_by"`
	AddedAt    time.Time `json:"addedAt" db:"added_at"`
	Reason     string    `json:"reason,omitempty" db:"reason"`
}

// WhitelistOpType is the kind of a queued whitelist mutation.
type WhitelistOpType string

const (
	WhitelistOpAdd    WhitelistOpType = "add"
	WhitelistOpRemove WhitelistOpType = "remove"
)

// WhitelistOp is an immutable record of one requested whitelist mutation.
// Ops are replaced wholesale by compaction, never mutated in place.
type WhitelistOp struct {
	Type       WhitelistOpType `json:"type"`
	PlayerID   string          `json:"playerId"`
	PlayerName string          `json:"playerName,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Executor   string          `json:"executor"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Key returns the compaction key for the op. At most one pending op may
// exist per key in a server's queue.
func (op WhitelistOp) Key() string {
	return op.PlayerID
}

// AddWhitelistRequest is the request body for adding a player to a whitelist.
type AddWhitelistRequest struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Executor   string `json:"executor,omitempty"`
}

// RemoveWhitelistRequest is the request body for removing a player from a whitelist.
type RemoveWhitelistRequest struct {
	Reason   string `json:"reason,omitempty"`
	Executor string `json:"executor,omitempty"`
}
