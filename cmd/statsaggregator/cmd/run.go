package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/phonehome/internal/statsaggregator"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs stats cycles until interrupted",
		RunE:  runStatsAggregator,
	}
	return cmd
}

func runStatsAggregator(_ *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	return statsaggregator.Run(config)
}
