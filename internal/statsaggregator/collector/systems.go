package collector

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/G-Research/phonehome/internal/common/armadacontext"
	"github.com/G-Research/phonehome/internal/statsaggregator/directory"
	"github.com/G-Research/phonehome/internal/statsaggregator/snapshot"
)

const UnknownVersion = "Unknown"

// SystemsDirectory is everything the systems collector reads from.
type SystemsDirectory interface {
	directory.ClusterDirectory
	directory.SystemDirectory
	directory.TierDirectory
	directory.BucketDirectory
	directory.AccountDirectory
	directory.ObjectDirectory
}

// SystemStatsCollector produces one record per system plus a cluster header.
type SystemStatsCollector struct {
	directory    SystemsDirectory
	version      string
	agentVersion string
	// Maximum number of systems queried concurrently.
	parallelism int
}

func NewSystemStatsCollector(directory SystemsDirectory, version string, agentVersion string, parallelism int) *SystemStatsCollector {
	if version == "" {
		version = UnknownVersion
	}
	if agentVersion == "" {
		agentVersion = UnknownVersion
	}
	if parallelism < 1 {
		parallelism = 1
	}
	return &SystemStatsCollector{
		directory:    directory,
		version:      version,
		agentVersion: agentVersion,
		parallelism:  parallelism,
	}
}

// Collect fails as a whole if any query for any system fails.
func (c *SystemStatsCollector) Collect(ctx *armadacontext.Context) (*snapshot.SystemsStats, error) {
	stats, err := c.collect(ctx)
	if err != nil {
		return nil, collectionFailed(ctx, "systems", err)
	}
	return stats, nil
}

func (c *SystemStatsCollector) collect(ctx *armadacontext.Context) (*snapshot.SystemsStats, error) {
	clusterId, err := c.directory.GetClusterId(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "getting cluster id")
	}
	systems, err := c.directory.ListAllSystems(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "listing systems")
	}

	// Each goroutine writes only its own index.
	records := make([]snapshot.SystemStats, len(systems))
	g, gctx := armadacontext.ErrGroup(ctx, c.parallelism)
	for i, system := range systems {
		i, system := i, system
		g.Go(func() error {
			sctx := armadacontext.WithLogFields(gctx, logrus.Fields{"systemId": system.Id, "systemName": system.Name})
			record, err := c.collectSystem(sctx, system)
			if err != nil {
				return errors.WithMessagef(err, "system %s", system.Id)
			}
			records[i] = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &snapshot.SystemsStats{
		ClusterId:    clusterId,
		Version:      c.version,
		AgentVersion: c.agentVersion,
		Count:        len(systems),
		Systems:      records,
	}, nil
}

func (c *SystemStatsCollector) collectSystem(ctx *armadacontext.Context, system directory.System) (snapshot.SystemStats, error) {
	tiers, err := c.directory.ListTiers(ctx, system)
	if err != nil {
		return snapshot.SystemStats{}, errors.WithMessage(err, "listing tiers")
	}
	buckets, err := c.directory.ListBuckets(ctx, system)
	if err != nil {
		return snapshot.SystemStats{}, errors.WithMessage(err, "listing buckets")
	}
	objects, err := c.directory.ChunksAndObjectsCount(ctx, system.Id)
	if err != nil {
		return snapshot.SystemStats{}, errors.WithMessage(err, "counting chunks and objects")
	}
	roles, err := c.directory.GetSystemRoles(ctx, system)
	if err != nil {
		return snapshot.SystemStats{}, errors.WithMessage(err, "getting roles")
	}
	info, err := c.directory.ReadSystem(ctx, system)
	if err != nil {
		return snapshot.SystemStats{}, errors.WithMessage(err, "reading system")
	}
	return snapshot.SystemStats{
		Tiers:           len(tiers),
		Buckets:         len(buckets),
		Chunks:          objects.Chunks,
		Objects:         objects.Objects,
		Roles:           len(roles),
		AllocatedSpace:  info.Storage.Alloc,
		UsedSpace:       info.Storage.Used,
		TotalSpace:      info.Storage.Total,
		AssociatedNodes: info.Nodes.Count,
		Properties: snapshot.NodeProperties{
			On:  info.Nodes.Online,
			Off: info.Nodes.Count - info.Nodes.Online,
		},
	}, nil
}
