package collector

import (
	"github.com/pkg/errors"

	"github.com/G-Research/phonehome/internal/common/armadacontext"
	"github.com/G-Research/phonehome/internal/statsaggregator/directory"
	"github.com/G-Research/phonehome/internal/statsaggregator/histogram"
	"github.com/G-Research/phonehome/internal/statsaggregator/snapshot"
)

const (
	bytesPerGB    = 1 << 30
	secondsPerDay = 60 * 60 * 24

	AllocationSizesLabel = "AllocationSizes(GB)"
	UsedSpaceLabel       = "UsedSpace(GB)"
	FreeSpaceLabel       = "FreeSpace(GB)"
	UptimeLabel          = "Uptime(Days)"
)

var (
	sizeBins = []histogram.Bin{
		{Label: "low", Start: 0},
		{Label: "med", Start: 100},
		{Label: "high", Start: 500},
	}
	uptimeBins = []histogram.Bin{
		{Label: "short", Start: 0},
		{Label: "mid", Start: 14},
		{Label: "long", Start: 30},
	}
)

// NodesDirectory is everything the nodes collector reads from.
type NodesDirectory interface {
	directory.SystemDirectory
	directory.NodeDirectory
}

// NodeStatsCollector aggregates the nodes of every system into counters and histograms.
type NodeStatsCollector struct {
	directory   NodesDirectory
	parallelism int
}

func NewNodeStatsCollector(directory NodesDirectory, parallelism int) *NodeStatsCollector {
	if parallelism < 1 {
		parallelism = 1
	}
	return &NodeStatsCollector{
		directory:   directory,
		parallelism: parallelism,
	}
}

type nodeHistograms struct {
	allocation *histogram.Histogram
	used       *histogram.Histogram
	free       *histogram.Histogram
	uptime     *histogram.Histogram
}

func newNodeHistograms() nodeHistograms {
	return nodeHistograms{
		allocation: histogram.MustNew(AllocationSizesLabel, sizeBins),
		used:       histogram.MustNew(UsedSpaceLabel, sizeBins),
		free:       histogram.MustNew(FreeSpaceLabel, sizeBins),
		uptime:     histogram.MustNew(UptimeLabel, uptimeBins),
	}
}

func (h nodeHistograms) all() []*histogram.Histogram {
	return []*histogram.Histogram{h.allocation, h.used, h.free, h.uptime}
}

// Collect fails as a whole if listing systems or the nodes of any system fails.
func (c *NodeStatsCollector) Collect(ctx *armadacontext.Context) (*snapshot.NodesStats, error) {
	stats, err := c.collect(ctx)
	if err != nil {
		return nil, collectionFailed(ctx, "nodes", err)
	}
	return stats, nil
}

func (c *NodeStatsCollector) collect(ctx *armadacontext.Context) (*snapshot.NodesStats, error) {
	systems, err := c.directory.ListAllSystems(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "listing systems")
	}

	nodesBySystem := make([][]directory.Node, len(systems))
	g, gctx := armadacontext.ErrGroup(ctx, c.parallelism)
	for i, system := range systems {
		i, system := i, system
		g.Go(func() error {
			nodes, err := c.directory.ListNodes(gctx, system.Id)
			if err != nil {
				return errors.WithMessagef(err, "listing nodes of system %s", system.Id)
			}
			nodesBySystem[i] = nodes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &snapshot.NodesStats{}
	histograms := newNodeHistograms()
	for _, nodes := range nodesBySystem {
		for _, node := range nodes {
			stats.Count++
			histograms.allocation.AddValue(float64(node.Storage.Alloc) / bytesPerGB)
			histograms.used.AddValue(float64(node.Storage.Used) / bytesPerGB)
			histograms.free.AddValue(float64(node.Storage.Free) / bytesPerGB)
			histograms.uptime.AddValue(float64(node.OsInfo.Uptime) / secondsPerDay)
			classifyOs(&stats.Os, node.OsInfo.OsType)
		}
	}
	stats.Histograms = make(map[string]map[string]int64, 4)
	for _, h := range histograms.all() {
		stats.Histograms[h.MasterLabel()] = h.ObjectData(false)
	}
	return stats, nil
}

func classifyOs(counts *snapshot.OsCounts, osType string) {
	switch osType {
	case "Darwin":
		counts.Osx++
	case "Windows_NT":
		counts.Win++
	case "Linux":
		counts.Linux++
	default:
		counts.Other++
	}
}
