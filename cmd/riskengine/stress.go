package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wyfcoding/riskengine/stress"
)

func newStressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Validate stress test scenario files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <file>",
		Short: "Load a stress scenario file and list its scenarios",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := stress.Load(args[0])
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, sc := range data.Scenarios {
				par := ""
				if sc.HasParShifts() {
					par = " (par)"
				}
				fmt.Fprintf(out, "%s: %d curve shifts, %d spot shifts%s\n", sc.Label, len(sc.Curves), len(sc.Spots), par)
			}
			return nil
		},
	})
	return cmd
}
