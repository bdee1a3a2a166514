package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pulsesync",
	Short: "Wearable pulse sensor sync daemon",
	Long: `pulsesync collects telemetry from a BLE pulse sensor and forwards it to an
Open mHealth data-point server:

- Heart rate, raw waveform, step counts and active minutes
- Durable local buffering until the server acknowledges an upload
- Foreground reconnection and a periodic background wake cycle
- Optional live display over a websocket

Bind a sensor with 'pulsesync bind', store a token with 'pulsesync token set',
then start the daemon with 'pulsesync run'.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("pulsesync {{.Version}} (commit %s, built %s)\n", commit, date))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(bindCmd)
	rootCmd.AddCommand(backgroundCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(flushCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(stepsCmd)

	// Global flags
	rootCmd.PersistentFlags().String("config", "pulsesync.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().String("db", "", "Database file (overrides config; ':memory:' for a dry run)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
