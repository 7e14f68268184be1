package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/G-Research/phonehome/internal/statsaggregator"
)

func snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Runs a single stats cycle and prints the snapshot instead of sending it",
		RunE:  printSnapshot,
	}
	cmd.Flags().Bool("pretty", false, "Indent the printed snapshot")
	return cmd
}

func printSnapshot(cmd *cobra.Command, _ []string) error {
	pretty, err := cmd.Flags().GetBool("pretty")
	if err != nil {
		return err
	}
	config, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := statsaggregator.Snapshot(config)
	if err != nil {
		return err
	}
	var payload []byte
	if pretty {
		payload, err = json.MarshalIndent(s, "", "  ")
	} else {
		payload, err = json.Marshal(s)
	}
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(payload))
	return err
}
