package cli

import (
	"time"

	"github.com/spf13/cobra"

	"vault-monitor/internal/app"
)

var (
	exportWindow  time.Duration
	exportBucket  time.Duration
	exportPNGPath string
	exportCSVPath string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export alert counts per bucket as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Window:  exportWindow,
			Bucket:  exportBucket,
			PNGPath: exportPNGPath,
			CSVPath: exportCSVPath,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().DurationVar(&exportWindow, "window", 0, "Export window (defaults to alertlog.retention)")
	exportCmd.Flags().DurationVar(&exportBucket, "bucket", 0, "Bucket width (defaults to export.bucket)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
}
