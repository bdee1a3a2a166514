package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/srg/pulsesync/internal/telemetry"
)

var bindCmd = &cobra.Command{
	Use:   "bind <address> [name]",
	Short: "Bind the sensor this host syncs from",
	Long: `Stores the sensor address the daemon scans for. With --lookup the sensor is
scanned for first and its advertised name is stored too.

Examples:
  pulsesync bind AA:BB:CC:DD:EE:FF
  pulsesync bind AA:BB:CC:DD:EE:FF "Left wrist"
  pulsesync bind AA:BB:CC:DD:EE:FF --lookup`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runBind,
}

func init() {
	bindCmd.Flags().Bool("lookup", false, "Scan for the sensor and store its advertised name")
}

func runBind(cmd *cobra.Command, args []string) error {
	identity := telemetry.PeripheralIdentity{ID: strings.TrimSpace(args[0])}
	if identity.ID == "" {
		return fmt.Errorf("sensor address is empty")
	}
	if len(args) > 1 {
		identity.Name = strings.TrimSpace(args[1])
	}

	a, _, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if lookup, _ := cmd.Flags().GetBool("lookup"); lookup {
		s, err := a.Scanner()
		if err != nil {
			return err
		}
		found, err := s.FindFirst(cmd.Context(), identity.ID, a.Config().ScanTimeout)
		if err != nil {
			return fmt.Errorf("failed to find %s: %w", identity.ID, err)
		}
		identity.ID = found.Address
		if identity.Name == "" {
			identity.Name = found.Name
		}
	}

	if err := a.Settings.SetPeripheral(cmd.Context(), identity); err != nil {
		return fmt.Errorf("failed to bind sensor: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Bound to %s (%s)\n", identity.DisplayName(), identity.ID)
	return nil
}
