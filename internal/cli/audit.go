package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mochilink/mochi-sync/internal/audit"
	"github.com/mochilink/mochi-sync/internal/domain"
)

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit log, newest first",
		Args:  cobra.NoArgs,
	}

	var (
		server    string
		operation string
		result    string
		limit     int
	)
	cmd.Flags().StringVar(&server, "server", "", "filter by server id")
	cmd.Flags().StringVar(&operation, "operation", "", "filter by operation (e.g. whitelist_add, ban_ban)")
	cmd.Flags().StringVar(&result, "result", "", "filter by result (success, cached, error)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records to fetch")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		path := "/api/v1/audit?limit=" + strconv.Itoa(limit)
		if server != "" {
			path += "&serverId=" + server
		}
		if operation != "" {
			path += "&operation=" + operation
		}
		if result != "" {
			path += "&result=" + result
		}

		var records []*domain.AuditRecord
		if err := rootOpts.client().get(cmd.Context(), path, &records); err != nil {
			return err
		}
		return rootOpts.print(cmd.OutOrStdout(), records, func() {
			fmt.Fprint(cmd.OutOrStdout(), audit.FormatAll(records))
		})
	}

	return cmd
}
