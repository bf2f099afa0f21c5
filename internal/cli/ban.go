package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mochilink/mochi-sync/internal/domain"
)

// NewBanCommand creates the ban command group.
func NewBanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ban",
		Short: "Manage per-server ban lists",
	}

	list := &cobra.Command{
		Use:   "list <server>",
		Short: "List bans",
		Args:  cobra.ExactArgs(1),
	}
	var includeInactive bool
	list.Flags().BoolVar(&includeInactive, "all", false, "include lifted and expired bans")
	list.RunE = func(cmd *cobra.Command, args []string) error {
		path := "/api/v1/servers/" + args[0] + "/bans"
		if includeInactive {
			path += "?includeInactive=true"
		}
		var bans []domain.BanEntry
		if err := rootOpts.client().get(cmd.Context(), path, &bans); err != nil {
			return err
		}
		return rootOpts.print(cmd.OutOrStdout(), bans, func() {
			for _, b := range bans {
				expiry := "permanent"
				if b.ExpiresAt != nil {
					expiry = "until " + b.ExpiresAt.Format(time.RFC3339)
				}
				state := "active"
				if !b.IsActive {
					state = "inactive"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %-40s %-9s %-26s %s\n", b.BanType, b.Target, state, expiry, b.Reason)
			}
		})
	}
	cmd.AddCommand(list)

	add := &cobra.Command{
		Use:   "add <server> <target>",
		Short: "Ban a target (queued if the server is offline)",
		Args:  cobra.ExactArgs(2),
	}
	var (
		banType    string
		targetName string
		reason     string
		executor   string
		duration   time.Duration
	)
	add.Flags().StringVar(&banType, "type", string(domain.BanTypePlayer), "ban type (player, ip, device)")
	add.Flags().StringVar(&targetName, "name", "", "target display name")
	add.Flags().StringVar(&reason, "reason", "", "ban reason")
	add.Flags().StringVar(&executor, "executor", "", "who requested the ban")
	add.Flags().DurationVar(&duration, "duration", 0, "ban duration (e.g. 72h); 0 means permanent")
	add.RunE = func(cmd *cobra.Command, args []string) error {
		req := domain.AddBanRequest{
			BanType:    domain.BanType(banType),
			Target:     args[1],
			TargetName: targetName,
			Reason:     reason,
			Executor:   executor,
			DurationMS: duration.Milliseconds(),
		}
		var result map[string]any
		if err := rootOpts.client().post(cmd.Context(), "/api/v1/servers/"+args[0]+"/bans", req, &result); err != nil {
			return err
		}
		return rootOpts.print(cmd.OutOrStdout(), result, func() {
			printMutation(cmd, result)
		})
	}
	cmd.AddCommand(add)

	lift := &cobra.Command{
		Use:   "lift <server> <target>",
		Short: "Lift a ban",
		Args:  cobra.ExactArgs(2),
	}
	var liftType, liftReason, liftExecutor string
	lift.Flags().StringVar(&liftType, "type", string(domain.BanTypePlayer), "ban type (player, ip, device)")
	lift.Flags().StringVar(&liftReason, "reason", "", "reason for lifting")
	lift.Flags().StringVar(&liftExecutor, "executor", "", "who requested the lift")
	lift.RunE = func(cmd *cobra.Command, args []string) error {
		req := domain.RemoveBanRequest{Reason: liftReason, Executor: liftExecutor}
		var result map[string]any
		path := "/api/v1/servers/" + args[0] + "/bans/" + liftType + "/" + args[1]
		if err := rootOpts.client().delete(cmd.Context(), path, req, &result); err != nil {
			return err
		}
		return rootOpts.print(cmd.OutOrStdout(), result, func() {
			printMutation(cmd, result)
		})
	}
	cmd.AddCommand(lift)

	check := &cobra.Command{
		Use:   "check <server> <target>",
		Short: "Check whether a target is banned",
		Args:  cobra.ExactArgs(2),
	}
	var checkType string
	check.Flags().StringVar(&checkType, "type", string(domain.BanTypePlayer), "ban type (player, ip, device)")
	check.RunE = func(cmd *cobra.Command, args []string) error {
		var result map[string]any
		path := "/api/v1/servers/" + args[0] + "/bans/" + checkType + "/" + args[1]
		if err := rootOpts.client().get(cmd.Context(), path, &result); err != nil {
			return err
		}
		return rootOpts.print(cmd.OutOrStdout(), result, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "banned: %v\n", result["banned"])
		})
	}
	cmd.AddCommand(check)

	cmd.AddCommand(&cobra.Command{
		Use:   "pending <server>",
		Short: "List queued ban operations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ops []domain.BanOp
			if err := rootOpts.client().get(cmd.Context(), "/api/v1/servers/"+args[0]+"/bans/pending", &ops); err != nil {
				return err
			}
			return rootOpts.print(cmd.OutOrStdout(), ops, func() {
				for _, op := range ops {
					fmt.Fprintf(cmd.OutOrStdout(), "%-8s %-8s %-40s by %s\n", op.Type, op.BanType, op.Target, op.Executor)
				}
			})
		},
	})

	return cmd
}
