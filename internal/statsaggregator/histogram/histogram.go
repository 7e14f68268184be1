// Package histogram provides a fixed-bin frequency counter with labeled bins.
package histogram

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/atomic"

	"github.com/G-Research/phonehome/internal/common/armadaerrors"
)

// Bin is a labeled, left-closed range of a Histogram's domain starting at Start.
// The range extends up to the Start of the next bin; the last bin is unbounded.
type Bin struct {
	Label string  `yaml:"label"`
	Start float64 `yaml:"start"`
}

// BinCount is the count reported for a single bin.
type BinCount struct {
	Label string
	Count int64
}

// Histogram counts samples into a fixed, ordered set of bins.
// Bins are immutable once constructed and AddValue may be called concurrently with any reader.
type Histogram struct {
	masterLabel string
	bins        []Bin
	counts      []*atomic.Int64
}

// New returns a Histogram with all counts set to zero. bins must be non-empty, have unique non-empty labels
// and strictly ascending starts.
func New(masterLabel string, bins []Bin) (*Histogram, error) {
	if err := Validate(bins); err != nil {
		return nil, err
	}
	h := &Histogram{
		masterLabel: masterLabel,
		bins:        make([]Bin, len(bins)),
		counts:      make([]*atomic.Int64, len(bins)),
	}
	copy(h.bins, bins)
	for i := range h.counts {
		h.counts[i] = atomic.NewInt64(0)
	}
	return h, nil
}

// MustNew is like New but panics on an invalid bin configuration.
func MustNew(masterLabel string, bins []Bin) *Histogram {
	h, err := New(masterLabel, bins)
	if err != nil {
		panic(err)
	}
	return h
}

// Validate checks that bins can be used to construct a Histogram.
func Validate(bins []Bin) error {
	if len(bins) == 0 {
		return &armadaerrors.ErrInvalidArgument{Name: "bins", Value: bins, Message: "at least one bin is required"}
	}
	seen := make(map[string]bool, len(bins))
	for i, bin := range bins {
		if bin.Label == "" {
			return &armadaerrors.ErrInvalidArgument{
				Name:    "bins",
				Value:   bins,
				Message: fmt.Sprintf("bin %d has an empty label", i),
			}
		}
		if seen[bin.Label] {
			return &armadaerrors.ErrInvalidArgument{
				Name:    "bins",
				Value:   bins,
				Message: fmt.Sprintf("duplicate bin label %s", bin.Label),
			}
		}
		seen[bin.Label] = true
		if math.IsNaN(bin.Start) {
			return &armadaerrors.ErrInvalidArgument{
				Name:    "bins",
				Value:   bins,
				Message: fmt.Sprintf("bin %s has no start", bin.Label),
			}
		}
		if i > 0 && bin.Start <= bins[i-1].Start {
			return &armadaerrors.ErrInvalidArgument{
				Name:    "bins",
				Value:   bins,
				Message: fmt.Sprintf("bin %s must start after bin %s", bin.Label, bins[i-1].Label),
			}
		}
	}
	return nil
}

func (h *Histogram) MasterLabel() string {
	return h.masterLabel
}

// AddValue counts v in the bin with the greatest start <= v.
// Values below the first start, and NaN, are counted in the first bin.
func (h *Histogram) AddValue(v float64) {
	h.counts[h.binIndex(v)].Inc()
}

func (h *Histogram) binIndex(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	i := sort.Search(len(h.bins), func(i int) bool { return h.bins[i].Start > v }) - 1
	if i < 0 {
		return 0
	}
	return i
}

// Counts returns the count of every bin in bin order.
// If cumulative is true each bin reports the running total of itself and all lower bins.
func (h *Histogram) Counts(cumulative bool) []BinCount {
	result := make([]BinCount, len(h.bins))
	var total int64
	for i, bin := range h.bins {
		count := h.counts[i].Load()
		if cumulative {
			total += count
			count = total
		}
		result[i] = BinCount{Label: bin.Label, Count: count}
	}
	return result
}

// ObjectData returns Counts keyed by bin label.
func (h *Histogram) ObjectData(cumulative bool) map[string]int64 {
	counts := h.Counts(cumulative)
	result := make(map[string]int64, len(counts))
	for _, c := range counts {
		result[c.Label] = c.Count
	}
	return result
}

// StringData renders the discrete counts in bin order, e.g. "low:2, med:1, high:1".
func (h *Histogram) StringData() string {
	counts := h.Counts(false)
	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = fmt.Sprintf("%s:%d", c.Label, c.Count)
	}
	return strings.Join(parts, ", ")
}

// Total is the number of values added so far.
func (h *Histogram) Total() int64 {
	var total int64
	for _, c := range h.counts {
		total += c.Load()
	}
	return total
}
