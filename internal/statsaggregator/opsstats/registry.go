// Package opsstats tracks per-operation latency histograms written by arbitrary application code
// and read once per stats cycle.
package opsstats

import (
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/G-Research/phonehome/internal/common/logging"
	"github.com/G-Research/phonehome/internal/statsaggregator/histogram"
)

// Registry holds one histogram per operation name. Histograms are created on first registration and never replaced.
// All methods are safe for concurrent use.
type Registry struct {
	histograms map[string]*histogram.Histogram
	mu         sync.RWMutex
	log        *log.Entry
}

func NewRegistry() *Registry {
	return &Registry{
		histograms: map[string]*histogram.Histogram{},
		log:        log.WithField("component", "opsstats"),
	}
}

// RegisterHistogram creates the histogram for opname unless one already exists.
// Misuse is logged and otherwise ignored.
func (r *Registry) RegisterHistogram(opname string, masterLabel string, structure []histogram.Bin) {
	if opname == "" || structure == nil {
		r.log.Debugf("Ignoring histogram registration with missing arguments: opname=%q bins=%v", opname, structure)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.histograms[opname]; ok {
		return
	}
	h, err := histogram.New(masterLabel, structure)
	if err != nil {
		logging.WithStacktrace(r.log.WithField("operation", opname), err).Debug("Ignoring invalid histogram registration")
		return
	}
	r.histograms[opname] = h
}

// AddSamplePoint records duration against opname. NaN is treated as a missing duration.
// Samples for unregistered operations are dropped.
func (r *Registry) AddSamplePoint(opname string, duration float64) {
	if opname == "" || math.IsNaN(duration) {
		r.log.Debugf("Ignoring sample with missing arguments: opname=%q duration=%v", opname, duration)
		return
	}

	r.mu.RLock()
	h, ok := r.histograms[opname]
	r.mu.RUnlock()
	if !ok {
		r.log.Debugf("Dropping sample for unregistered operation %s", opname)
		return
	}
	h.AddValue(duration)
}

// ObserveDuration records d in milliseconds.
func (r *Registry) ObserveDuration(opname string, d time.Duration) {
	r.AddSamplePoint(opname, float64(d)/float64(time.Millisecond))
}

// GetOpsStats returns the string rendering of every registered histogram keyed by operation name.
func (r *Registry) GetOpsStats() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]string, len(r.histograms))
	for opname, h := range r.histograms {
		result[opname] = h.StringData()
	}
	return result
}

// NamedHistogram pairs a registered histogram with its operation name.
type NamedHistogram struct {
	Operation string
	Histogram *histogram.Histogram
}

// Histograms returns every registered histogram sorted by operation name.
func (r *Registry) Histograms() []NamedHistogram {
	r.mu.RLock()
	defer r.mu.RUnlock()
	opnames := maps.Keys(r.histograms)
	slices.Sort(opnames)
	result := make([]NamedHistogram, len(opnames))
	for i, opname := range opnames {
		result[i] = NamedHistogram{Operation: opname, Histogram: r.histograms[opname]}
	}
	return result
}
