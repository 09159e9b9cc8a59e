package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vault-monitor/internal/app"
)

var (
	alertsWindow   time.Duration
	alertsLimit    int
	alertsDatabase bool
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Display recent alerts and their statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertsLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.AlertsOptions{
			Window:       alertsWindow,
			Limit:        alertsLimit,
			FromDatabase: alertsDatabase,
		}

		return getApp().Alerts(cmd.Context(), opts)
	},
}

func init() {
	alertsCmd.Flags().DurationVar(&alertsWindow, "window", 0, "Statistics window (defaults to alertlog.window)")
	alertsCmd.Flags().IntVar(&alertsLimit, "limit", 20, "Number of alerts to display")
	alertsCmd.Flags().BoolVar(&alertsDatabase, "db", false, "Read the PostgreSQL mirror instead of the alert log")
}
