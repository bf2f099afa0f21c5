package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mochilink/mochi-sync/internal/domain"
)

// NewStatusCommand creates the status command. With a server argument it
// shows that server's per-list sync state; without one it shows
// coordinator-wide stats.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status [server]",
		Short: "Show sync status for a server, or overall stats",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				var statuses []domain.SyncStatus
				if err := rootOpts.client().get(cmd.Context(), "/api/v1/servers/"+args[0]+"/sync/status", &statuses); err != nil {
					return err
				}
				return rootOpts.print(cmd.OutOrStdout(), statuses, func() {
					printStatuses(cmd, statuses)
				})
			}

			var stats domain.EngineStats
			if err := rootOpts.client().get(cmd.Context(), "/api/v1/stats", &stats); err != nil {
				return err
			}
			return rootOpts.print(cmd.OutOrStdout(), stats, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "servers:   %d online / %d known\n", stats.ServersOnline, stats.ServersKnown)
				fmt.Fprintf(cmd.OutOrStdout(), "entries:   %d\n", stats.TotalEntries)
				fmt.Fprintf(cmd.OutOrStdout(), "pending:   %d\n", stats.TotalPendingOperations)
				for _, e := range stats.LastSyncErrors {
					fmt.Fprintf(cmd.OutOrStdout(), "  error: %s\n", e)
				}
			})
		},
	}
}
