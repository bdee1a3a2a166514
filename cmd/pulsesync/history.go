package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/pulsesync/internal/omh"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print data points stored on the server",
	Long: fmt.Sprintf(`Reads back the data points of one schema created within [--from, --to).
Times are RFC 3339 or plain dates (2006-01-02, UTC).

Schemas: %s

Examples:
  pulsesync history
  pulsesync history --schema step-count --from 2024-03-01 --to 2024-03-02`, strings.Join(omh.Schemas, ", ")),
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().String("schema", omh.SchemaHeartRate, "Schema name")
	historyCmd.Flags().String("from", "", "Start time (default: 24h ago)")
	historyCmd.Flags().String("to", "", "End time (default: now)")
	historyCmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
}

func parseTimeFlag(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use RFC 3339 or YYYY-MM-DD", value)
	}
	return t, nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	schema, _ := cmd.Flags().GetString("schema")
	known := false
	for _, s := range omh.Schemas {
		known = known || s == schema
	}
	if !known {
		return fmt.Errorf("unknown schema %q: must be one of %v", schema, omh.Schemas)
	}
	format, _ := cmd.Flags().GetString("format")
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
	}

	now := time.Now()
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")
	from, err := parseTimeFlag(fromStr, now.Add(-24*time.Hour))
	if err != nil {
		return err
	}
	to, err := parseTimeFlag(toStr, now)
	if err != nil {
		return err
	}
	if !from.Before(to) {
		return fmt.Errorf("--from must be before --to")
	}

	a, _, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Config().ServerURL == "" {
		return ErrNoServer
	}
	token, err := a.Credentials.Token(cmd.Context())
	if err != nil {
		return err
	}
	points, err := a.Transport.GetPoints(cmd.Context(), token, schema, from, to)
	if err != nil {
		return err
	}

	if format == "json" {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(points)
	}
	return displayPoints(cmd.OutOrStdout(), points)
}

func displayPoints(out io.Writer, points []omh.PointRecord) error {
	if len(points) == 0 {
		fmt.Fprintln(out, "No data points")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tSCHEMA\tVALUE")
	for _, p := range points {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Header.CreationDateTime, p.Header.SchemaID.Name, pointValue(p))
	}
	return w.Flush()
}

// pointValue renders the measured value of a decoded point body.
func pointValue(p omh.PointRecord) string {
	body, ok := p.Body.(map[string]any)
	if !ok {
		return "?"
	}
	unitValue := func(key string) string {
		v, ok := body[key].(map[string]any)
		if !ok {
			return "?"
		}
		return fmt.Sprintf("%v %v", v["value"], v["unit"])
	}

	switch p.Header.SchemaID.Name {
	case omh.SchemaHeartRate:
		return unitValue("heart_rate")
	case omh.SchemaModerateMinutes:
		return unitValue("minutes_moderate_activity")
	case omh.SchemaStepCount:
		if v, ok := body["step_count"]; ok {
			return fmt.Sprintf("%v steps", v)
		}
	}
	return "?"
}
