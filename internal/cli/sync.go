package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mochilink/mochi-sync/internal/domain"
)

// NewSyncCommand creates the sync command. With a server argument it syncs
// that server; without one it syncs the whole fleet.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [server]",
		Short: "Force an immediate reconciliation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				var statuses []domain.SyncStatus
				if err := rootOpts.client().post(cmd.Context(), "/api/v1/servers/"+args[0]+"/sync", nil, &statuses); err != nil {
					return err
				}
				return rootOpts.print(cmd.OutOrStdout(), statuses, func() {
					printStatuses(cmd, statuses)
				})
			}

			var all map[string][]domain.SyncStatus
			if err := rootOpts.client().post(cmd.Context(), "/api/v1/sync", nil, &all); err != nil {
				return err
			}
			return rootOpts.print(cmd.OutOrStdout(), all, func() {
				ids := make([]string, 0, len(all))
				for id := range all {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				for _, id := range ids {
					fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", id)
					printStatuses(cmd, all[id])
				}
			})
		},
	}
}

// printStatuses renders per-list sync state for one server.
func printStatuses(cmd *cobra.Command, statuses []domain.SyncStatus) {
	for _, st := range statuses {
		last := "never"
		if !st.LastSync.IsZero() {
			last = st.LastSync.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-10s last sync %-20s pending %d\n", st.ListType, last, st.PendingOperations)
		for _, e := range st.SyncErrors {
			fmt.Fprintf(cmd.OutOrStdout(), "  error: %s\n", e)
		}
	}
}
