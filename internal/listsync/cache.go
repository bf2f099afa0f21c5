package listsync

import (
	"sort"
	"time"

	"github.com/mochilink/mochi-sync/internal/domain"
)

// whitelistCache is the in-memory whitelist view for one server, keyed by
// player id. The version counter is an observability aid for external
// consumers; it plays no part in conflict detection.
type whitelistCache struct {
	entries    map[string]domain.WhitelistEntry
	lastUpdate time.Time
	version    uint64
}

func newWhitelistCache() *whitelistCache {
	return &whitelistCache{entries: make(map[string]domain.WhitelistEntry)}
}

// snapshot returns a defensive copy of the entries, sorted by player id.
func (c *whitelistCache) snapshot() []domain.WhitelistEntry {
	out := make([]domain.WhitelistEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// replace swaps in a wholesale new entry set, as after a pull.
func (c *whitelistCache) replace(entries []domain.WhitelistEntry) {
	c.entries = make(map[string]domain.WhitelistEntry, len(entries))
	for _, e := range entries {
		c.entries[e.PlayerID] = e
	}
	c.bump()
}

// apply folds one confirmed operation into the cache.
func (c *whitelistCache) apply(serverID string, op domain.WhitelistOp) {
	delete(c.entries, op.PlayerID)
	if op.Type == domain.WhitelistOpAdd {
		c.entries[op.PlayerID] = domain.WhitelistEntry{
			ServerID:   serverID,
			PlayerID:   op.PlayerID,
			PlayerName: op.PlayerName,
			AddedBy:    op.Executor,
			AddedAt:    op.Timestamp,
			Reason:     op.Reason,
		}
	}
	c.bump()
}

func (c *whitelistCache) has(playerID string) bool {
	_, ok := c.entries[playerID]
	return ok
}

func (c *whitelistCache) bump() {
	c.version++
	c.lastUpdate = time.Now().UTC()
}

// banCache is the in-memory ban view for one server, keyed by
// (ban type, target). It holds the latest record per key; an inactive
// record is retained as history until a pull or a new ban supersedes it.
type banCache struct {
	entries    map[string]domain.BanEntry
	lastUpdate time.Time
	version    uint64
}

func newBanCache() *banCache {
	return &banCache{entries: make(map[string]domain.BanEntry)}
}

// snapshot returns a defensive copy of all records (active and inactive),
// sorted by key.
func (c *banCache) snapshot() []domain.BanEntry {
	out := make([]domain.BanEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// active returns a defensive copy of the active records, sorted by key.
func (c *banCache) active() []domain.BanEntry {
	out := make([]domain.BanEntry, 0, len(c.entries))
	for _, e := range c.entries {
		if e.IsActive {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (c *banCache) replace(entries []domain.BanEntry) {
	c.entries = make(map[string]domain.BanEntry, len(entries))
	for _, e := range entries {
		c.entries[e.Key()] = e
	}
	c.bump()
}

// apply folds one confirmed operation into the cache. A ban replaces any
// existing record for the key; an unban flips the existing record inactive.
func (c *banCache) apply(serverID string, op domain.BanOp) {
	key := op.Key()
	switch op.Type {
	case domain.BanOpBan:
		c.entries[key] = domain.BanEntry{
			ID:         domain.BanID(serverID, op.BanType, op.Target),
			ServerID:   serverID,
			BanType:    op.BanType,
			Target:     op.Target,
			TargetName: op.TargetName,
			Reason:     op.Reason,
			BannedBy:   op.Executor,
			BannedAt:   op.Timestamp,
			ExpiresAt:  op.ExpiresAt(),
			IsActive:   true,
		}
	case domain.BanOpUnban:
		if e, ok := c.entries[key]; ok {
			e.IsActive = false
			c.entries[key] = e
		}
	}
	c.bump()
}

// get returns the record for a key, if present.
func (c *banCache) get(key string) (domain.BanEntry, bool) {
	e, ok := c.entries[key]
	return e, ok
}

// expired returns the active records whose expiry is at or before now.
func (c *banCache) expired(now time.Time) []domain.BanEntry {
	var out []domain.BanEntry
	for _, e := range c.entries {
		if e.IsActive && e.Expired(now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// deactivate marks the record for a key inactive.
func (c *banCache) deactivate(key string) {
	if e, ok := c.entries[key]; ok {
		e.IsActive = false
		c.entries[key] = e
		c.bump()
	}
}

func (c *banCache) bump() {
	c.version++
	c.lastUpdate = time.Now().UTC()
}
