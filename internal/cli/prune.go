package cli

import (
	"time"

	"github.com/spf13/cobra"
)

var pruneRetention time.Duration

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop alert and metrics log lines older than the retention",
	RunE: func(cmd *cobra.Command, args []string) error {
		retention := pruneRetention
		if !cmd.Flags().Changed("retention") {
			retention = -1
		}
		return getApp().Prune(cmd.Context(), retention)
	},
}

func init() {
	pruneCmd.Flags().DurationVar(&pruneRetention, "retention", 0, "Keep lines newer than this (defaults to alertlog.retention; 0 keeps nothing)")
}
