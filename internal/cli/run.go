package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the active network and raise alerts until interrupted",
	Long: "Prunes the alert logs, then assembles a dashboard on every scheduler tick. " +
		"Editing the network key of the config file switches the active network without a restart.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}
