package audit

import (
	"fmt"
	"strings"

	"github.com/mochilink/mochi-sync/internal/domain"
)

// Format renders one audit record as a single human-readable line, used by
// the admin CLI and ops tooling.
//
//	2025-03-07 18:22:41  srv1  whitelist_add     success  by admin
//	2025-03-07 18:22:45  srv1  ban_ban           cached   by admin
//	2025-03-07 18:23:02  srv2  ban_unban         error    by system: bridge timeout
func Format(rec *domain.AuditRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s  %-17s %-8s by %s",
		rec.CreatedAt.Format("2006-01-02 15:04:05"),
		rec.ServerID,
		rec.Operation,
		rec.Result,
		rec.Executor)
	if rec.ErrorMessage != "" {
		fmt.Fprintf(&b, ": %s", rec.ErrorMessage)
	}
	return b.String()
}

// FormatAll renders records one per line, newline-terminated.
func FormatAll(records []*domain.AuditRecord) string {
	var b strings.Builder
	for _, rec := range records {
		b.WriteString(Format(rec))
		b.WriteByte('\n')
	}
	return b.String()
}
