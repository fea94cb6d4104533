package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/offboardpro/offboardpro/api/config"
	"github.com/offboardpro/offboardpro/api/logging"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:           "offboardpro",
	Short:         "OffboardPro API server and operator tools",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, entitlementCmd, tokenCmd, upgradeCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "offboardpro %s\n", Version)
		if GitCommit != "unknown" {
			fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", GitCommit)
		}
	},
}

// loadConfig populates config.AppConfig once and installs the logger.
func loadConfig() (*config.Config, error) {
	if config.AppConfig == nil {
		cfg, err := config.LoadConfig()
		if err != nil {
			return nil, err
		}
		config.AppConfig = cfg
	}
	logging.Init(config.AppConfig.LogLevel, config.AppConfig.LogFormat)
	return config.AppConfig, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
