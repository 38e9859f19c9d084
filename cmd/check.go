package cmd

import (
	"github.com/spf13/cobra"
)

// newCheckCmd runs exactly one polling iteration and exits. Useful for cron
// setups and for verifying credentials after a config change.
func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run a single polling iteration and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), configPath())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Orchestrator().RunOnce(cmd.Context())
		},
	}
}
