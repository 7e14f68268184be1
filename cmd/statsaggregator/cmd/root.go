package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/G-Research/phonehome/internal/common"
	commonconfig "github.com/G-Research/phonehome/internal/common/config"
	"github.com/G-Research/phonehome/internal/statsaggregator/configuration"
)

const (
	CustomConfigLocation string = "config"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "statsaggregator",
		SilenceUsage: true,
		Short:        "Collects cluster usage statistics and phones them home",
	}

	cmd.PersistentFlags().StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")
	if err := viper.BindPFlag(CustomConfigLocation, cmd.PersistentFlags().Lookup(CustomConfigLocation)); err != nil {
		panic(err)
	}

	cmd.AddCommand(
		runCmd(),
		snapshotCmd(),
		migrateDbCmd(),
	)

	return cmd
}

func loadConfig() (configuration.StatsAggregatorConfiguration, error) {
	var config configuration.StatsAggregatorConfiguration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)

	common.LoadConfig(&config, "./config/statsaggregator", userSpecifiedConfigs)

	err := config.Validate()
	if err != nil {
		commonconfig.LogValidationErrors(err)
	}
	return config, err
}
