// Package cli implements linkctl, the operator command line for the
// coordinator API.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	APIURL string
	APIKey string
	JSON   bool
}

// client builds the API client from the resolved options.
func (o *RootOptions) client() *Client {
	return NewClient(o.APIURL, o.APIKey)
}

// print writes v as indented JSON when --json is set, otherwise calls text.
func (o *RootOptions) print(w io.Writer, v any, text func()) error {
	if o.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text()
	return nil
}

// NewRootCommand creates the root command for linkctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "linkctl",
		Short: "Operator CLI for the whitelist and ban coordinator",
		Long: `linkctl talks to a running coordinator over its HTTP API to inspect and
mutate whitelists, bans, pending queues, and sync state.

The API endpoint and key can be set with --api/--key or through the
MOCHI_API and MOCHI_API_KEY environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.APIURL == "" {
				opts.APIURL = os.Getenv("MOCHI_API")
			}
			if opts.APIURL == "" {
				opts.APIURL = "http://localhost:8080"
			}
			if opts.APIKey == "" {
				opts.APIKey = os.Getenv("MOCHI_API_KEY")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.APIURL, "api", "", "coordinator base URL (default $MOCHI_API or http://localhost:8080)")
	cmd.PersistentFlags().StringVar(&opts.APIKey, "key", "", "API key (default $MOCHI_API_KEY)")
	cmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "output raw JSON")

	cmd.AddCommand(NewServersCommand(opts))
	cmd.AddCommand(NewWhitelistCommand(opts))
	cmd.AddCommand(NewBanCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
