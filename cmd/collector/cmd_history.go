package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var historyHours float64

var historyCmd = &cobra.Command{
	Use:   "history <sensor-id>",
	Short: "Print the recent history of a sensor",
	Long:  `Print the records of the last --hours of a sensor's history file, oldest first.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().Float64Var(&historyHours, "hours", 1, "window to print, in hours")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyHours <= 0 {
		return fmt.Errorf("--hours must be positive, got %v", historyHours)
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}

	sensorID := args[0]
	window := time.Duration(historyHours * float64(time.Hour))
	records, err := e.store.RecentHistory(sensorID, window, e.cfg.Interval())
	if err != nil {
		return err
	}

	name := sensorID
	if s, ok := e.reg.Lookup(sensorID); ok {
		name = s.Name
	}

	w := os.Stdout
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintf(w, "%s - last %v h (%d records)\n", name, historyHours, len(records))
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintf(w, "%-20s %12s %8s %8s %8s\n", "Timestamp", "Power (kW)", "PF", "THD %", "Hz")
	for _, r := range records {
		fmt.Fprintf(w, "%-20s %12.2f %8.3f %8.2f %8.2f\n",
			r.Timestamp.Format("2006-01-02 15:04:05"), r.ActivePower, r.TotalPowerFactor, r.RelativeTHDVoltage, r.Frequency)
	}
	return nil
}
