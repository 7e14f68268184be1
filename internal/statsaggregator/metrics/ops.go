package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/G-Research/phonehome/internal/statsaggregator/opsstats"
)

type OpsHistogramSource interface {
	Histograms() []opsstats.NamedHistogram
}

// OpsHistogramCollector exposes the discrete count of every bin of every ops latency histogram,
// and the number of samples per operation. Values are read at scrape time.
type OpsHistogramCollector struct {
	source      OpsHistogramSource
	binDesc     *prometheus.Desc
	samplesDesc *prometheus.Desc
}

func NewOpsHistogramCollector(source OpsHistogramSource) *OpsHistogramCollector {
	return &OpsHistogramCollector{
		source: source,
		binDesc: prometheus.NewDesc(
			MetricPrefix+"ops_histogram_bin",
			"Number of samples recorded in a bin of an operation's latency histogram.",
			[]string{"operation", "bin"},
			nil,
		),
		samplesDesc: prometheus.NewDesc(
			MetricPrefix+"ops_histogram_samples",
			"Number of samples recorded in an operation's latency histogram.",
			[]string{"operation"},
			nil,
		),
	}
}

func (c *OpsHistogramCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.binDesc
	ch <- c.samplesDesc
}

func (c *OpsHistogramCollector) Collect(ch chan<- prometheus.Metric) {
	for _, named := range c.source.Histograms() {
		for _, count := range named.Histogram.Counts(false) {
			ch <- prometheus.MustNewConstMetric(c.binDesc, prometheus.GaugeValue, float64(count.Count), named.Operation, count.Label)
		}
		ch <- prometheus.MustNewConstMetric(c.samplesDesc, prometheus.GaugeValue, float64(named.Histogram.Total()), named.Operation)
	}
}
