package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wyfcoding/riskengine/config"
	"github.com/wyfcoding/riskengine/cube"
	"github.com/wyfcoding/riskengine/stress"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate engine configuration files",
	}
	cmd.AddCommand(newConfigCheckCmd())
	return cmd
}

// checkConfig 除结构校验外，还检查依赖配置的派生对象能否构造。
func checkConfig(path string) (*config.Config, error) {
	var c config.Config
	if err := config.Read(path, &c); err != nil {
		return nil, err
	}
	if _, err := c.Simulation.AsOfDate(); err != nil {
		return nil, err
	}
	if _, err := c.Simulation.GridPeriods(); err != nil {
		return nil, err
	}
	if _, err := cube.AccumulatorFromConfig(c.Cube.Accumulator); err != nil {
		return nil, err
	}
	if c.Stress.File != "" {
		if _, err := stress.Load(c.Stress.File); err != nil {
			return nil, fmt.Errorf("stress file %s: %w", c.Stress.File, err)
		}
	}
	return &c, nil
}

func newConfigCheckCmd() *cobra.Command {
	var show bool
	cmd := &cobra.Command{
		Use:   "check <file>",
		Short: "Load and validate a TOML configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := checkConfig(args[0])
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "configuration valid: %s\n", args[0])
			fmt.Fprintf(out, "  asof %s, grid %s, %d samples\n", c.Simulation.AsOf, c.Simulation.Grid, c.Simulation.Samples)
			fmt.Fprintf(out, "  %d factors, %d sensitivity shifts, %d par instrument types\n",
				len(c.Simulation.Factors), len(c.Sensitivity.Shifts), len(c.ParConversion.Instruments))
			if show {
				config.PrintWithMask(c)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&show, "print", false, "log the effective configuration with secrets masked")
	return cmd
}
