package configuration

import (
	"time"

	commonconfig "github.com/G-Research/phonehome/internal/common/config"
	"github.com/G-Research/phonehome/internal/common/database"
	"github.com/G-Research/phonehome/internal/common/logging"
	"github.com/G-Research/phonehome/internal/statsaggregator/histogram"
)

const (
	DirectoryMemdb    = "memdb"
	DirectoryPostgres = "postgres"

	LockStandalone = "standalone"
	LockRedis      = "redis"
)

type StatsAggregatorConfiguration struct {
	// Port on which prometheus metrics are served
	MetricsPort uint16 `validate:"required"`
	// Port on which the health endpoint is served
	HttpPort uint16 `validate:"required"`
	// Reported in every snapshot; empty means "Unknown"
	Version      string
	AgentVersion string
	CentralStats CentralStatsConfig
	Cycle        CycleConfig
	Directory    DirectoryConfig
	// Only used by the postgres directory
	Postgres database.PostgresConfig `validate:"-"`
	Lock     LockConfig
	// Only used by the redis cycle lock
	Redis commonconfig.RedisConfig `validate:"-"`
	// Optional second sink for snapshots
	Pulsar PulsarSinkConfig `validate:"-"`
	// Latency histograms registered with the ops registry at startup
	OpsHistograms []OpsHistogramConfig `validate:"dive"`
	Logging       LoggingConfig        `validate:"-"`
}

type CentralStatsConfig struct {
	// Set when stats are gathered by an external listener instead; disables the scheduler
	ExternalCollection bool
	// Base url of the central listener; snapshots are posted to <ListenerUrl>/phdata
	ListenerUrl        string `validate:"omitempty,url"`
	InsecureSkipVerify bool
	// Timeout of a single post
	SendTimeout time.Duration
	MaxAttempts uint
	RetryDelay  time.Duration
}

// Enabled reports whether this process should run stats cycles itself.
func (c CentralStatsConfig) Enabled() bool {
	return !c.ExternalCollection && c.ListenerUrl != ""
}

type CycleConfig struct {
	CyclePeriod           time.Duration `validate:"required"`
	MinTimeSinceLastCycle time.Duration
	CycleTimeout          time.Duration `validate:"required"`
	// Maximum number of systems queried concurrently
	Parallelism int `validate:"gte=1"`
}

type DirectoryConfig struct {
	Type string `validate:"oneof=memdb postgres"`
	// Yaml fixture loaded by the memdb directory
	FixturePath          string
	ClusterIdCacheExpiry time.Duration
}

type LockConfig struct {
	Type string `validate:"oneof=standalone redis"`
	Key  string
}

type PulsarSinkConfig struct {
	Enabled                   bool
	commonconfig.PulsarConfig `mapstructure:",squash"`
}

type OpsHistogramConfig struct {
	Operation   string `validate:"required"`
	MasterLabel string `validate:"required"`
	Bins        []histogram.Bin
}

type LoggingConfig struct {
	File logging.FileConfig
}
