package cli

import (
	"github.com/spf13/cobra"

	"vault-monitor/internal/app"
)

var snapshotView string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Run one aggregation pass and print it as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Snapshot(cmd.Context(), app.SnapshotOptions{View: snapshotView})
	},
}

func init() {
	snapshotCmd.Flags().StringVar(&snapshotView, "view", app.ViewDashboard, "One of dashboard, vaults, providers, apy, keepers, network, alerts")
}
