package main

import (
	"github.com/spf13/cobra"

	"github.com/wyfcoding/riskengine/logging"
)

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:   "riskengine",
		Short: "Counterparty and market risk engine tooling",
		Long: `riskengine inspects NPV cubes written by the valuation engine and
validates engine configuration and stress test files.

Examples:
  riskengine cube info run.cube.gz
  riskengine cube export run.cube.gz --depth 0 -o run.csv
  riskengine config check risk.toml`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logging.InitLogger(logging.Config{Service: "riskengine", Module: "cli", Level: logLevel, Format: "text", Output: "stderr"})
			logging.SetLevel(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newCubeCmd(),
		newConfigCmd(),
		newStressCmd(),
		newVersionCmd(),
	)
	return root
}
