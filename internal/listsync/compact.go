package listsync

import "github.com/mochilink/mochi-sync/internal/domain"

// CompactWhitelist merges a new operation into a pending queue, preserving
// the at-most-one-per-target invariant. The input queue is not modified.
//
// Rules, keyed by op.Key():
//   - an existing op of the opposite type cancels with the new one: both
//     disappear, the server never needs to see either;
//   - an existing op of the same type is replaced wholesale, so the newest
//     executor, timestamp, and reason win;
//   - otherwise the new op is appended.
func CompactWhitelist(queue []domain.WhitelistOp, op domain.WhitelistOp) []domain.WhitelistOp {
	out := make([]domain.WhitelistOp, 0, len(queue)+1)
	cancelled := false
	for _, e := range queue {
		if e.Key() != op.Key() {
			out = append(out, e)
			continue
		}
		if e.Type != op.Type {
			// Opposite intents cancel; drop both.
			cancelled = true
		}
		// Same type: drop the stale op, the new one is appended below.
	}
	if !cancelled {
		out = append(out, op)
	}
	return out
}

// CompactBan merges a new ban operation into a pending queue. The rule is
// identical to CompactWhitelist with ban/unban as the opposing pair.
func CompactBan(queue []domain.BanOp, op domain.BanOp) []domain.BanOp {
	out := make([]domain.BanOp, 0, len(queue)+1)
	cancelled := false
	for _, e := range queue {
		if e.Key() != op.Key() {
			out = append(out, e)
			continue
		}
		if e.Type != op.Type {
			cancelled = true
		}
	}
	if !cancelled {
		out = append(out, op)
	}
	return out
}
