package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "Show or reset the running step total",
}

var stepsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the step total",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, _, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "Steps: %d\n", a.Steps.Total())
		return nil
	},
}

var stepsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the step total to 0",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, _, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Steps.Reset(cmd.Context()); err != nil {
			return fmt.Errorf("failed to reset steps: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Steps: 0")
		return nil
	},
}

func init() {
	stepsCmd.AddCommand(stepsShowCmd)
	stepsCmd.AddCommand(stepsResetCmd)
}
