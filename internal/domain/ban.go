package domain

import "time"

// BanType distinguishes what kind of identity a ban targets.
type BanType string

const (
	BanTypePlayer BanType = "player"
	BanTypeIP     BanType = "ip"
	BanTypeDevice BanType = "device"
)

// Valid reports whether t is one of the known ban types.
func (t BanType) Valid() bool {
	switch t {
	case BanTypePlayer, BanTypeIP, BanTypeDevice:
		return true
	}
	return false
}

// BanEntry represents one ban record on one server.
// Identity is (ServerID, BanType, Target); ID is derived from that key and is
// stable but not a substitute for it. An inactive entry is a logically
// deleted record kept for history, not erased.
type BanEntry struct {
	ID         string     `json:"id" db:"id"`
	ServerID   string     `json:"serverId" db:"server_id"`
	BanType    BanType    `json:"banType" db:"ban_type"`
	Target     string     `json:"target" db:"target"`
	TargetName string     `json:"targetName,omitempty" db:"target_name"`
	Reason     string     `json:"reason" db:"reason"`
	BannedBy   string     `json:"bannedBy" db:"banned_by"`
	BannedAt   time.Time  `json:"bannedAt" db:"banned_at"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty" db:"expires_at"`
	IsActive   bool       `json:"isActive" db:"is_active"`
}

// Key returns the identity key of the entry within its server.
func (e *BanEntry) Key() string {
	return BanKey(e.BanType, e.Target)
}

// Expired reports whether the entry has an expiry at or before now.
func (e *BanEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}

// BanID derives the stable id string for a ban record.
func BanID(serverID string, banType BanType, target string) string {
	return serverID + ":" + string(banType) + ":" + target
}

// BanKey derives the per-server identity key for a ban target.
func BanKey(banType BanType, target string) string {
	return string(banType) + ":" + target
}

// BanOpType is the kind of a queued ban mutation.
type BanOpType string

const (
	BanOpBan   BanOpType = "ban"
	BanOpUnban BanOpType = "unban"
)

// BanOp is an immutable record of one requested ban mutation.
// A zero Duration means the ban is permanent.
type BanOp struct {
	Type       BanOpType     `json:"type"`
	BanType    BanType       `json:"banType"`
	Target     string        `json:"target"`
	TargetName string        `json:"targetName,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Executor   string        `json:"executor"`
	Timestamp  time.Time     `json:"timestamp"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// Key returns the compaction key for the op.
func (op BanOp) Key() string {
	return BanKey(op.BanType, op.Target)
}

// ExpiresAt returns the expiry implied by the op's timestamp and duration,
// or nil for a permanent ban.
func (op BanOp) ExpiresAt() *time.Time {
	if op.Duration <= 0 {
		return nil
	}
	t := op.Timestamp.Add(op.Duration)
	return &t
}

// AddBanRequest is the request body for banning a target.
// DurationMS of zero means permanent.
type AddBanRequest struct {
	BanType    BanType `json:"banType"`
	Target     string  `json:"target"`
	TargetName string  `json:"targetName,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Executor   string  `json:"executor,omitempty"`
	DurationMS int64   `json:"durationMs,omitempty"`
}

// RemoveBanRequest is the request body for unbanning a target.
type RemoveBanRequest struct {
	Reason   string `json:"reason,omitempty"`
	Executor string `json:"executor,omitempty"`
}
