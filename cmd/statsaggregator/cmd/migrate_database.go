package cmd

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/G-Research/phonehome/internal/statsaggregator"
)

func migrateDbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrateDatabase",
		Short: "migrates the postgres directory schema to the latest version",
		RunE:  migrateDatabase,
	}
	return cmd
}

func migrateDatabase(_ *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	start := time.Now()
	log.Info("Beginning directory database migration")
	if err := statsaggregator.MigrateDatabase(config); err != nil {
		return errors.WithMessage(err, "failed to migrate directory database")
	}
	log.Infof("Directory database migrated in %s", time.Since(start))
	return nil
}
