package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/pulsesync/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List nearby sensors",
	Long: `Scans for advertising peripherals and lists them with their address, name and
signal strength. Only peripherals advertising the pulse sensor service are shown
unless --all is given. Use the address with 'pulsesync bind'.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationP("duration", "d", 0, "Scan duration (default: scan_timeout from config)")
	scanCmd.Flags().Bool("all", false, "Show every peripheral, not only pulse sensors")
	scanCmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().Bool("no-progress", false, "Hide the countdown")
}

func runScan(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
	}

	a, _, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	duration, _ := cmd.Flags().GetDuration("duration")
	if duration <= 0 {
		duration = a.Config().ScanTimeout
	}
	all, _ := cmd.Flags().GetBool("all")

	s, err := a.Scanner()
	if err != nil {
		return err
	}

	var progress func(string)
	if hide, _ := cmd.Flags().GetBool("no-progress"); !hide {
		p := NewCountdownProgressPrinter(cmd.ErrOrStderr(), "Scanning for sensors", duration)
		p.Start()
		defer p.Stop()
		progress = p.Callback()
	}

	sensors, err := s.Scan(cmd.Context(), &scanner.ScanOptions{
		Duration:        duration,
		DuplicateFilter: true,
		SensorsOnly:     !all,
	}, progress)
	if err != nil {
		return err
	}

	if format == "json" {
		return displaySensorsJSON(cmd.OutOrStdout(), sensors)
	}
	return displaySensorsTable(cmd.OutOrStdout(), sensors)
}

func displaySensorsTable(out io.Writer, sensors []scanner.Sensor) error {
	if len(sensors) == 0 {
		fmt.Fprintln(out, "No sensors discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSENSOR")
	for _, s := range sensors {
		name := s.Name
		if name == "" {
			name = "(unnamed)"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		sensor := "no"
		if s.HasService {
			sensor = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\n", name, s.Address, s.RSSI, sensor)
	}
	return w.Flush()
}

type sensorJSON struct {
	Address  string    `json:"address"`
	Name     string    `json:"name"`
	RSSI     int       `json:"rssi"`
	Sensor   bool      `json:"sensor"`
	LastSeen time.Time `json:"last_seen"`
}

func displaySensorsJSON(out io.Writer, sensors []scanner.Sensor) error {
	list := make([]sensorJSON, 0, len(sensors))
	for _, s := range sensors {
		list = append(list, sensorJSON{
			Address:  s.Address,
			Name:     s.Name,
			RSSI:     s.RSSI,
			Sensor:   s.HasService,
			LastSeen: s.LastSeen,
		})
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(list)
}
