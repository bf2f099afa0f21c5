package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mochilink/mochi-sync/internal/domain"
)

// serverInfo is the list/get response shape, a Server plus reachability.
type serverInfo struct {
	domain.Server
	IsOnline bool `json:"isOnline"`
}

// NewServersCommand creates the servers command group.
func NewServersCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Manage the server registry",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var servers []serverInfo
			if err := rootOpts.client().get(cmd.Context(), "/api/v1/servers", &servers); err != nil {
				return err
			}
			return rootOpts.print(cmd.OutOrStdout(), servers, func() {
				for _, s := range servers {
					state := "offline"
					if s.IsOnline {
						state = "online"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-24s %-8s %v\n", s.ID, s.Address, state, s.Capabilities)
				}
			})
		},
	})

	register := &cobra.Command{
		Use:   "register <id>",
		Short: "Register a server",
		Args:  cobra.ExactArgs(1),
	}
	var (
		name    string
		address string
		caps    []string
	)
	register.Flags().StringVar(&name, "name", "", "display name (default: id)")
	register.Flags().StringVar(&address, "address", "", "server address")
	register.Flags().StringSliceVar(&caps, "capability", []string{domain.CapabilityWhitelist, domain.CapabilityBan}, "advertised capabilities")
	register.RunE = func(cmd *cobra.Command, args []string) error {
		var server domain.Server
		req := domain.CreateServerRequest{ID: args[0], Name: name, Address: address, Capabilities: caps}
		if err := rootOpts.client().post(cmd.Context(), "/api/v1/servers", req, &server); err != nil {
			return err
		}
		return rootOpts.print(cmd.OutOrStdout(), server, func() {
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", server.ID)
		})
	}
	cmd.AddCommand(register)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: "Deregister a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rootOpts.client().delete(cmd.Context(), "/api/v1/servers/"+args[0]+"/", nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	})

	return cmd
}
