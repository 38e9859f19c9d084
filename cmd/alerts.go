package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gradewatch/gradewatch/internal/monitor"
)

// newAlertsCmd groups alert inspection and maintenance.
func newAlertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Inspect and clear persisted per-account alerts",
	}
	cmd.AddCommand(newAlertsListCmd())
	cmd.AddCommand(newAlertsClearCmd())
	return cmd
}

func newAlertsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List outstanding alerts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), configPath())
			if err != nil {
				return err
			}
			defer a.Close()

			total := 0
			for _, kind := range []monitor.AlertKind{monitor.AlertBlockingCondition, monitor.AlertFetchError} {
				recs, err := a.Alerts().Get(cmd.Context(), kind)
				if err != nil {
					return err
				}
				for _, rec := range recs {
					total++
					cmd.Printf("%-20s %-20s %s  %s\n",
						rec.AccountID, rec.Kind, rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.Detail)
				}
			}
			if total == 0 {
				cmd.Println("no outstanding alerts")
			}
			return nil
		},
	}
}

func newAlertsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <account_id> <kind>",
		Short: "Clear one alert (kind: blocking_condition or fetch_error)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, kind := args[0], monitor.AlertKind(args[1])
			if !kind.Valid() {
				return fmt.Errorf("unknown alert kind %q", kind)
			}

			a, err := newApp(cmd.Context(), configPath())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Alerts().Clear(cmd.Context(), accountID, kind); err != nil {
				return err
			}
			cmd.Printf("cleared %s/%s\n", accountID, kind)
			return nil
		},
	}
}
