package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/G-Research/phonehome/internal/common/armadacontext"
	"github.com/G-Research/phonehome/internal/statsaggregator/snapshot"
)

const MetricPrefix = "phonehome_"

const (
	CycleSucceeded = "succeeded"
	CycleFailed    = "failed"
	CycleSkipped   = "skipped"
)

// Metrics is a prometheus.Collector for the outcome of stats cycles.
type Metrics struct {
	cycles           *prometheus.CounterVec
	stageFailures    *prometheus.CounterVec
	lastSuccess      prometheus.Gauge
	systems          prometheus.Gauge
	nodes            prometheus.Gauge
	deliveryFailures prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricPrefix + "cycles_total",
				Help: "Number of stats cycles by result.",
			},
			[]string{"result"},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricPrefix + "stage_failures_total",
				Help: "Number of stats cycles that failed, by the stage that failed.",
			},
			[]string{"stage"},
		),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricPrefix + "last_successful_cycle_timestamp_seconds",
			Help: "Unix time at which the last stats cycle produced a snapshot.",
		}),
		systems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricPrefix + "snapshot_systems",
			Help: "Number of systems in the last successful snapshot.",
		}),
		nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricPrefix + "snapshot_nodes",
			Help: "Number of nodes in the last successful snapshot.",
		}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricPrefix + "delivery_failures_total",
			Help: "Number of snapshots that could not be delivered.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.cycles, m.stageFailures, m.lastSuccess, m.systems, m.nodes, m.deliveryFailures}
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

func (m *Metrics) ReportCycleSucceeded(s *snapshot.Snapshot, finishedAt time.Time) {
	m.cycles.WithLabelValues(CycleSucceeded).Inc()
	m.lastSuccess.Set(float64(finishedAt.UnixNano()) / 1e9)
	if s.SysStats != nil {
		m.systems.Set(float64(s.SysStats.Count))
	}
	if s.NodeStats != nil {
		m.nodes.Set(float64(s.NodeStats.Count))
	}
}

func (m *Metrics) ReportCycleFailed() {
	m.cycles.WithLabelValues(CycleFailed).Inc()
}

func (m *Metrics) ReportCycleSkipped() {
	m.cycles.WithLabelValues(CycleSkipped).Inc()
}

func (m *Metrics) ReportDeliveryFailed() {
	m.deliveryFailures.Inc()
}

// ObserveTransition counts the stage an assembler was in when it moved to Failed.
// It has the signature of snapshot.TransitionHook.
func (m *Metrics) ObserveTransition(_ *armadacontext.Context, from snapshot.State, to snapshot.State) {
	if to == snapshot.Failed {
		m.stageFailures.WithLabelValues(strings.ToLower(from.String())).Inc()
	}
}
