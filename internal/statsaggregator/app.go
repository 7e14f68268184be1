package statsaggregator

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/phonehome/internal/common"
	"github.com/G-Research/phonehome/internal/common/app"
	"github.com/G-Research/phonehome/internal/common/armadacontext"
	"github.com/G-Research/phonehome/internal/common/armadaerrors"
	"github.com/G-Research/phonehome/internal/common/database"
	"github.com/G-Research/phonehome/internal/common/health"
	"github.com/G-Research/phonehome/internal/common/logging"
	"github.com/G-Research/phonehome/internal/common/pulsarutils"
	"github.com/G-Research/phonehome/internal/statsaggregator/collector"
	"github.com/G-Research/phonehome/internal/statsaggregator/configuration"
	"github.com/G-Research/phonehome/internal/statsaggregator/delivery"
	"github.com/G-Research/phonehome/internal/statsaggregator/directory"
	"github.com/G-Research/phonehome/internal/statsaggregator/directory/memdb"
	"github.com/G-Research/phonehome/internal/statsaggregator/directory/postgres"
	"github.com/G-Research/phonehome/internal/statsaggregator/metrics"
	"github.com/G-Research/phonehome/internal/statsaggregator/opsstats"
	"github.com/G-Research/phonehome/internal/statsaggregator/scheduler"
	"github.com/G-Research/phonehome/internal/statsaggregator/snapshot"
)

// Run sets up the stats aggregator and runs it until a SIGTERM is received
func Run(config configuration.StatsAggregatorConfiguration) error {
	ctx := app.CreateContextWithShutdown()

	logFile, err := common.ConfigureFileLogging(config.Logging.File)
	if err != nil {
		return errors.WithMessage(err, "error configuring file logging")
	}
	defer logFile.Close()
	log.AddHook(logging.NewPrometheusHook(prometheus.DefaultRegisterer))

	if !config.CentralStats.Enabled() {
		ctx.Log.Info("Central statistics gathering is disabled; nothing to do")
		return nil
	}

	//////////////////////////////////////////////////////////////////////////
	// Health Checks
	//////////////////////////////////////////////////////////////////////////
	mux := http.NewServeMux()
	startupCompleteCheck := health.NewStartupCompleteChecker()
	healthChecks := health.NewMultiChecker(startupCompleteCheck)
	health.SetupHttpMux(mux, healthChecks)
	shutdownHttpServer := common.ServeHttp(config.HttpPort, mux)
	defer shutdownHttpServer()

	//////////////////////////////////////////////////////////////////////////
	// Metrics
	//////////////////////////////////////////////////////////////////////////
	cycleMetrics := metrics.New()
	registry := NewOpsRegistry(config.OpsHistograms)
	prometheus.MustRegister(cycleMetrics, metrics.NewOpsHistogramCollector(registry))
	shutdownMetricServer := common.ServeMetrics(config.MetricsPort, prometheus.DefaultGatherer)
	defer shutdownMetricServer()

	//////////////////////////////////////////////////////////////////////////
	// Directory
	//////////////////////////////////////////////////////////////////////////
	dir, closeDirectory, err := createDirectory(ctx, config)
	if err != nil {
		return err
	}
	defer closeDirectory()
	assembler := NewAssembler(config, dir, registry).OnTransition(cycleMetrics.ObserveTransition)

	//////////////////////////////////////////////////////////////////////////
	// Delivery
	//////////////////////////////////////////////////////////////////////////
	sender, closeSender, err := createSender(config)
	if err != nil {
		return err
	}
	defer closeSender()

	//////////////////////////////////////////////////////////////////////////
	// Scheduling
	//////////////////////////////////////////////////////////////////////////
	lock, closeLock, err := createCycleLock(config)
	if err != nil {
		return err
	}
	defer closeLock()
	statsScheduler := scheduler.NewScheduler(
		scheduler.Config{
			CyclePeriod:           config.Cycle.CyclePeriod,
			MinTimeSinceLastCycle: config.Cycle.MinTimeSinceLastCycle,
			CycleTimeout:          config.Cycle.CycleTimeout,
		},
		assembler,
		sender,
		lock,
		cycleMetrics,
		prometheus.DefaultRegisterer,
	)
	healthChecks.Add(statsScheduler)

	// Mark startup as complete, will allow the health check to return healthy once a cycle has run
	startupCompleteCheck.MarkComplete()

	return statsScheduler.Run(ctx)
}

// Snapshot runs a single cycle against the configured directory without delivering the result.
func Snapshot(config configuration.StatsAggregatorConfiguration) (*snapshot.Snapshot, error) {
	ctx := armadacontext.Background()
	dir, closeDirectory, err := createDirectory(ctx, config)
	if err != nil {
		return nil, err
	}
	defer closeDirectory()
	return NewAssembler(config, dir, NewOpsRegistry(config.OpsHistograms)).Assemble(ctx)
}

// MigrateDatabase brings the postgres directory schema up to date.
func MigrateDatabase(config configuration.StatsAggregatorConfiguration) error {
	ctx := armadacontext.Background()
	db, err := database.OpenPgxPool(ctx, config.Postgres)
	if err != nil {
		return errors.WithMessage(err, "error opening connection to postgres")
	}
	defer db.Close()
	migrations, err := postgres.Migrations()
	if err != nil {
		return err
	}
	return database.UpdateDatabase(ctx, db, migrations)
}

// NewOpsRegistry returns a registry with every configured histogram registered.
func NewOpsRegistry(histograms []configuration.OpsHistogramConfig) *opsstats.Registry {
	registry := opsstats.NewRegistry()
	for _, h := range histograms {
		registry.RegisterHistogram(h.Operation, h.MasterLabel, h.Bins)
	}
	return registry
}

// NewAssembler wires the collectors to dir. Every directory query made by the collectors is timed into registry.
func NewAssembler(config configuration.StatsAggregatorConfiguration, dir directory.Directory, registry *opsstats.Registry) *snapshot.Assembler {
	timed := directory.NewTimed(dir, registry)
	return snapshot.NewAssembler(
		collector.NewSystemStatsCollector(timed, config.Version, config.AgentVersion, config.Cycle.Parallelism),
		collector.NewNodeStatsCollector(timed, config.Cycle.Parallelism),
		collector.NewOpsStatsCollector(registry),
	).WithPreCycleHook(clusterReadinessCheck(dir))
}

// clusterReadinessCheck runs before each cycle and tells an unregistered cluster apart from an unreachable
// directory, so the cycle failure that follows can be diagnosed. It queries dir directly so the lookup is not
// counted as a collector operation.
func clusterReadinessCheck(dir directory.ClusterDirectory) snapshot.PreCycleHook {
	return func(ctx *armadacontext.Context) error {
		clusterId, err := dir.GetClusterId(ctx)
		if armadaerrors.IsNotFound(err) {
			return errors.WithMessage(err, "cluster is not registered in the directory")
		}
		if err != nil {
			return errors.WithMessage(err, "directory is not reachable")
		}
		ctx.Log.Debugf("Collecting stats for cluster %s", clusterId)
		return nil
	}
}

func createDirectory(ctx *armadacontext.Context, config configuration.StatsAggregatorConfiguration) (directory.Directory, func(), error) {
	switch config.Directory.Type {
	case configuration.DirectoryMemdb:
		ctx.Log.Infof("Reading cluster directory from %s", config.Directory.FixturePath)
		fixture, err := memdb.LoadFixture(config.Directory.FixturePath)
		if err != nil {
			return nil, nil, err
		}
		dir, err := memdb.NewFromFixture(fixture)
		if armadaerrors.IsInvalidArgument(err) {
			return nil, nil, errors.WithMessagef(err, "fixture %s describes an invalid cluster", config.Directory.FixturePath)
		}
		if err != nil {
			return nil, nil, err
		}
		return dir, func() {}, nil
	case configuration.DirectoryPostgres:
		ctx.Log.Info("Reading cluster directory from postgres")
		db, err := database.OpenPgxPool(ctx, config.Postgres)
		if err != nil {
			return nil, nil, errors.WithMessage(err, "error opening connection to postgres")
		}
		return postgres.New(db, config.Directory.ClusterIdCacheExpiry), db.Close, nil
	default:
		return nil, nil, errors.Errorf("%s is not a valid directory type", config.Directory.Type)
	}
}

// createSender fans snapshots out to the central listener, pulsar when enabled, and the log when debug logging is on.
func createSender(config configuration.StatsAggregatorConfiguration) (delivery.Sender, func(), error) {
	senders := []delivery.Sender{
		delivery.NewHttpSender(delivery.HttpSenderConfig{
			ListenerUrl:        config.CentralStats.ListenerUrl,
			InsecureSkipVerify: config.CentralStats.InsecureSkipVerify,
			Timeout:            config.CentralStats.SendTimeout,
			MaxAttempts:        config.CentralStats.MaxAttempts,
			RetryDelay:         config.CentralStats.RetryDelay,
		}),
	}
	closer := func() {}

	if config.Pulsar.Enabled {
		log.Infof("Stats will also be published to pulsar topic %s", config.Pulsar.Topic)
		pulsarClient, err := pulsarutils.NewPulsarClient(&config.Pulsar.PulsarConfig)
		if err != nil {
			return nil, nil, errors.WithMessage(err, "error creating pulsar client")
		}
		options, err := pulsarutils.NewProducerOptions(&config.Pulsar.PulsarConfig, fmt.Sprintf("phonehome-stats-%s", uuid.NewString()))
		if err != nil {
			pulsarClient.Close()
			return nil, nil, err
		}
		producer, err := pulsarClient.CreateProducer(options)
		if err != nil {
			pulsarClient.Close()
			return nil, nil, errors.Wrapf(err, "error creating pulsar producer for topic %s", options.Topic)
		}
		pulsarSender := delivery.NewPulsarSender(producer)
		senders = append(senders, pulsarSender)
		closer = func() {
			pulsarSender.Close()
			pulsarClient.Close()
		}
	}

	if log.IsLevelEnabled(log.DebugLevel) {
		senders = append(senders, delivery.LogSender{})
	}

	if len(senders) == 1 {
		return senders[0], closer, nil
	}
	return delivery.NewMultiSender(senders...), closer, nil
}

func createCycleLock(config configuration.StatsAggregatorConfiguration) (scheduler.CycleLock, func(), error) {
	switch config.Lock.Type {
	case configuration.LockStandalone:
		log.Info("Stats cycles will run in standalone mode")
		return scheduler.StandaloneCycleLock{}, func() {}, nil
	case configuration.LockRedis:
		log.Infof("Stats cycles will be coordinated through redis key %s", config.Lock.Key)
		redisClient := config.Redis.NewClient()
		closer := func() {
			if err := redisClient.Close(); err != nil {
				log.WithError(errors.WithStack(err)).Warnf("Redis client didn't close down cleanly")
			}
		}
		return scheduler.NewRedisCycleLock(redisClient, config.Lock.Key), closer, nil
	default:
		return nil, nil, errors.Errorf("%s is not a valid lock type", config.Lock.Type)
	}
}
