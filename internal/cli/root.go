package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vault-monitor/internal/app"
	"vault-monitor/internal/config"
	"vault-monitor/internal/logging"
)

var (
	cfgFile     string
	logLevel    string
	networkName string
	appHandle   *app.App
)

var rootCmd = &cobra.Command{
	Use:           "vaultwatch",
	Short:         "Monitor vaults, yield providers and keepers across EVM networks",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil || cmd.Name() == versionCmd.Name() {
			return nil
		}

		loader, err := config.NewLoader(cfgFile)
		if err != nil {
			return err
		}
		cfg, err := loader.Config()
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if networkName != "" {
			name := strings.ToLower(strings.TrimSpace(networkName))
			if _, ok := cfg.Networks[name]; !ok {
				return fmt.Errorf("unknown network %q (known: %s)", networkName, strings.Join(cfg.NetworkNames(), ", "))
			}
			cfg.Network = name
		}

		logger := logging.NewLogger(cfg.Logging)
		appHandle = app.NewApp(loader, cfg, logger)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")
	rootCmd.PersistentFlags().StringVar(&networkName, "network", "", "Override the active network")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(alertsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(simulateKeeperCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
