package logging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var countedLevels = []logrus.Level{
	logrus.DebugLevel,
	logrus.InfoLevel,
	logrus.WarnLevel,
	logrus.ErrorLevel,
}

// PrometheusHook is a logrus.Hook counting log lines per level, so that a rise in warnings from failed
// cycles shows up on a dashboard.
type PrometheusHook struct {
	counters map[logrus.Level]prometheus.Counter
}

func NewPrometheusHook(registerer prometheus.Registerer) *PrometheusHook {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "log_messages_total",
		Help: "Number of log lines written, by level",
	}, []string{"level"})
	registerer.MustRegister(vec)

	counters := make(map[logrus.Level]prometheus.Counter, len(countedLevels))
	for _, level := range countedLevels {
		counters[level] = vec.WithLabelValues(level.String())
	}
	return &PrometheusHook{counters: counters}
}

func (h *PrometheusHook) Levels() []logrus.Level {
	return countedLevels
}

func (h *PrometheusHook) Fire(entry *logrus.Entry) error {
	h.counters[entry.Level].Inc()
	return nil
}
