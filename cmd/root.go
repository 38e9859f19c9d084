// Package cmd implements the gradewatch command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gradewatch/gradewatch/internal/app"
)

var cfgFile string

// newApp is the application factory, replaceable in tests.
var newApp = app.New

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gradewatch",
		Short: "Polls a student portal for grade changes and sends notifications.",
		Long: `gradewatch logs into a university student-information portal for each
configured account, compares the grade table against the last stored
snapshot, and notifies on every change. Per-account failures are recorded
as persisted alerts and never stop the loop.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./gradewatch.yaml)")

	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newAlertsCmd())
	return cmd
}

// configPath resolves the --config flag with a working-directory default.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if _, err := os.Stat("gradewatch.yaml"); err == nil {
		return "gradewatch.yaml"
	}
	return ""
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
