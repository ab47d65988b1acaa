package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single collection cycle",
	Long:  `Poll every sensor once and exit. Exits non-zero when every request of the cycle failed.`,
	Args:  cobra.NoArgs,
	RunE:  runOnce,
}

func init() {
	rootCmd.AddCommand(onceCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	c, err := e.newCollector()
	if err != nil {
		return err
	}

	stats := c.NewStats()
	if err := c.RunCycle(cmd.Context(), stats); err != nil {
		return err
	}
	if stats.AllRequestsFailed() {
		return errors.New("every sensor request failed")
	}
	return nil
}
