package configuration

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	commonconfig "github.com/G-Research/phonehome/internal/common/config"
	"github.com/G-Research/phonehome/internal/statsaggregator/histogram"
)

// Validate checks the struct tags and the sections that only apply to the selected directory, lock and sinks.
func (c StatsAggregatorConfiguration) Validate() error {
	var result *multierror.Error
	if err := commonconfig.Validate(c); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Cycle.MinTimeSinceLastCycle > c.Cycle.CyclePeriod {
		result = multierror.Append(result, errors.Errorf(
			"cycle.minTimeSinceLastCycle (%s) must not exceed cycle.cyclePeriod (%s)", c.Cycle.MinTimeSinceLastCycle, c.Cycle.CyclePeriod))
	}
	// The cycle timeout is also the lease on the cycle lock.
	if c.Cycle.CycleTimeout > c.Cycle.CyclePeriod {
		result = multierror.Append(result, errors.Errorf(
			"cycle.cycleTimeout (%s) must not exceed cycle.cyclePeriod (%s)", c.Cycle.CycleTimeout, c.Cycle.CyclePeriod))
	}
	if c.Directory.Type == DirectoryMemdb && c.Directory.FixturePath == "" {
		result = multierror.Append(result, errors.New("directory.fixturePath is required for the memdb directory"))
	}
	if c.Directory.Type == DirectoryPostgres {
		if err := commonconfig.Validate(c.Postgres); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if c.Lock.Type == LockRedis {
		if c.Lock.Key == "" {
			result = multierror.Append(result, errors.New("lock.key is required for the redis lock"))
		}
		if err := commonconfig.Validate(c.Redis); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if c.Pulsar.Enabled {
		if err := commonconfig.Validate(c.Pulsar.PulsarConfig); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, h := range c.OpsHistograms {
		if err := histogram.Validate(h.Bins); err != nil {
			result = multierror.Append(result, errors.WithMessagef(err, "opsHistograms %s", h.Operation))
		}
	}
	if err := c.Logging.File.Validate(); err != nil {
		result = multierror.Append(result, errors.WithMessage(err, "logging.file"))
	}
	return result.ErrorOrNil()
}
