package main

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll every sensor until interrupted",
	Long:  `Run a collection cycle every interval until Ctrl+C or SIGTERM, then print the final summary.`,
	Args:  cobra.NoArgs,
	RunE:  runCollector,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runCollector(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	c, err := e.newCollector()
	if err != nil {
		return err
	}

	_, err = c.Run(cmd.Context())
	return err
}
