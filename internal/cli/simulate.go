package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"vault-monitor/internal/app"
)

var simulateOpts app.SimulateOptions

var simulateKeeperCmd = &cobra.Command{
	Use:   "simulate-keeper",
	Short: "Evaluate synthetic upkeep values and publish the resulting alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := simulateOpts
		if opts.SuccessCount+opts.FailureCount > opts.ExecutionCount {
			return errors.New("--successes plus --failures cannot exceed --executions")
		}
		return getApp().SimulateKeeper(cmd.Context(), opts)
	},
}

func init() {
	f := simulateKeeperCmd.Flags()
	f.StringVar(&simulateOpts.Key, "key", "simulated", "Keeper key used in alert payloads")
	f.StringVar(&simulateOpts.Status, "status", "active", "Upkeep status (active, paused)")
	f.StringVar(&simulateOpts.Balance, "balance", "1", "Upkeep balance in ETH")
	f.StringVar(&simulateOpts.TotalSpent, "total-spent", "0", "Total spent in ETH")
	f.Int64Var(&simulateOpts.ExecutionCount, "executions", 0, "Execution count")
	f.Int64Var(&simulateOpts.SuccessCount, "successes", 0, "Successful executions")
	f.Int64Var(&simulateOpts.FailureCount, "failures", 0, "Failed executions")
	f.DurationVar(&simulateOpts.LastRunAgo, "last-run-ago", 0, "Time since the last execution (0 means never)")
}
