package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mochilink/mochi-sync/internal/domain"
)

// NewWhitelistCommand creates the whitelist command group.
func NewWhitelistCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Manage per-server whitelists",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <server>",
		Short: "List the cached whitelist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []domain.WhitelistEntry
			if err := rootOpts.client().get(cmd.Context(), "/api/v1/servers/"+args[0]+"/whitelist", &entries); err != nil {
				return err
			}
			return rootOpts.print(cmd.OutOrStdout(), entries, func() {
				for _, e := range entries {
					fmt.Fprintf(cmd.OutOrStdout(), "%-36s %-16s added by %s\n", e.PlayerID, e.PlayerName, e.AddedBy)
				}
			})
		},
	})

	add := &cobra.Command{
		Use:   "add <server> <player-id>",
		Short: "Whitelist a player (queued if the server is offline)",
		Args:  cobra.ExactArgs(2),
	}
	var (
		playerName string
		reason     string
		executor   string
	)
	add.Flags().StringVar(&playerName, "name", "", "player display name")
	add.Flags().StringVar(&reason, "reason", "", "reason for the change")
	add.Flags().StringVar(&executor, "executor", "", "who requested the change")
	add.RunE = func(cmd *cobra.Command, args []string) error {
		req := domain.AddWhitelistRequest{PlayerID: args[1], PlayerName: playerName, Reason: reason, Executor: executor}
		var result map[string]any
		if err := rootOpts.client().post(cmd.Context(), "/api/v1/servers/"+args[0]+"/whitelist", req, &result); err != nil {
			return err
		}
		return rootOpts.print(cmd.OutOrStdout(), result, func() {
			printMutation(cmd, result)
		})
	}
	cmd.AddCommand(add)

	remove := &cobra.Command{
		Use:   "remove <server> <player-id>",
		Short: "Remove a player from the whitelist",
		Args:  cobra.ExactArgs(2),
	}
	var removeReason, removeExecutor string
	remove.Flags().StringVar(&removeReason, "reason", "", "reason for the change")
	remove.Flags().StringVar(&removeExecutor, "executor", "", "who requested the change")
	remove.RunE = func(cmd *cobra.Command, args []string) error {
		req := domain.RemoveWhitelistRequest{Reason: removeReason, Executor: removeExecutor}
		var result map[string]any
		if err := rootOpts.client().delete(cmd.Context(), "/api/v1/servers/"+args[0]+"/whitelist/"+args[1], req, &result); err != nil {
			return err
		}
		return rootOpts.print(cmd.OutOrStdout(), result, func() {
			printMutation(cmd, result)
		})
	}
	cmd.AddCommand(remove)

	cmd.AddCommand(&cobra.Command{
		Use:   "check <server> <player-id>",
		Short: "Check whether a player is whitelisted",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result map[string]any
			if err := rootOpts.client().get(cmd.Context(), "/api/v1/servers/"+args[0]+"/whitelist/"+args[1], &result); err != nil {
				return err
			}
			return rootOpts.print(cmd.OutOrStdout(), result, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "whitelisted: %v\n", result["whitelisted"])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "pending <server>",
		Short: "List queued whitelist operations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ops []domain.WhitelistOp
			if err := rootOpts.client().get(cmd.Context(), "/api/v1/servers/"+args[0]+"/whitelist/pending", &ops); err != nil {
				return err
			}
			return rootOpts.print(cmd.OutOrStdout(), ops, func() {
				for _, op := range ops {
					fmt.Fprintf(cmd.OutOrStdout(), "%-8s %-36s by %s\n", op.Type, op.PlayerID, op.Executor)
				}
			})
		},
	})

	return cmd
}

// printMutation renders a mutation result line.
func printMutation(cmd *cobra.Command, result map[string]any) {
	state := "applied"
	if queued, _ := result["queued"].(bool); queued {
		state = "queued (server offline)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", result["target"], state)
}
