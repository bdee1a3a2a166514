package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var backgroundCmd = &cobra.Command{
	Use:   "background [on|off]",
	Short: "Show or set background mode",
	Long: `In background mode a paused daemon wakes periodically, reconnects to the
sensor for a short hold window, and releases it again. Without an argument the
current setting is printed.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE:      runBackground,
}

func runBackground(cmd *cobra.Command, args []string) error {
	var enable *bool
	if len(args) == 1 {
		switch args[0] {
		case "on":
			v := true
			enable = &v
		case "off":
			v := false
			enable = &v
		default:
			return fmt.Errorf("invalid argument %q: use on or off", args[0])
		}
	}

	a, _, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if enable != nil {
		if err := a.SetBackground(cmd.Context(), *enable); err != nil {
			return err
		}
	}

	bg, err := a.Settings.Background(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read background setting: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Background mode: %s\n", onOff(bg))
	return nil
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
