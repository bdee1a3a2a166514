package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Upload buffered telemetry now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, _, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.Config().ServerURL == "" {
			return ErrNoServer
		}

		n, err := a.Flush(cmd.Context())
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to upload")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Data posted to server (%d data points)\n", n)
		return nil
	},
}
