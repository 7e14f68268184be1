package collector

import (
	"github.com/G-Research/phonehome/internal/common/armadacontext"
	"github.com/G-Research/phonehome/internal/statsaggregator/snapshot"
)

// OpsRegistry is the source of per-operation latency stats.
type OpsRegistry interface {
	GetOpsStats() map[string]string
}

type OpsStatsCollector struct {
	registry OpsRegistry
}

func NewOpsStatsCollector(registry OpsRegistry) *OpsStatsCollector {
	return &OpsStatsCollector{registry: registry}
}

// Collect never fails; it reads the registry without waiting on anything external.
func (c *OpsStatsCollector) Collect(_ *armadacontext.Context) (snapshot.OpsStats, error) {
	return c.registry.GetOpsStats(), nil
}
