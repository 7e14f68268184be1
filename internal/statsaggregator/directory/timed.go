package directory

import (
	"time"

	"k8s.io/utils/clock"

	"github.com/G-Research/phonehome/internal/common/armadacontext"
)

// Operation names under which Timed reports query latencies.
const (
	OpGetClusterId          = "get_cluster_id"
	OpListAllSystems        = "list_all_systems"
	OpReadSystem            = "read_system"
	OpListTiers             = "list_tiers"
	OpListBuckets           = "list_buckets"
	OpGetSystemRoles        = "get_system_roles"
	OpChunksAndObjectsCount = "chunks_and_objects_count"
	OpListNodes             = "list_nodes"
)

type DurationObserver interface {
	ObserveDuration(opname string, d time.Duration)
}

// Timed wraps a Directory and reports the latency of every query, failed or not, to an observer.
type Timed struct {
	inner    Directory
	observer DurationObserver
	clock    clock.PassiveClock
}

func NewTimed(inner Directory, observer DurationObserver) *Timed {
	return &Timed{inner: inner, observer: observer, clock: clock.RealClock{}}
}

func (t *Timed) observe(opname string, start time.Time) {
	t.observer.ObserveDuration(opname, t.clock.Since(start))
}

func (t *Timed) GetClusterId(ctx *armadacontext.Context) (string, error) {
	defer t.observe(OpGetClusterId, t.clock.Now())
	return t.inner.GetClusterId(ctx)
}

func (t *Timed) ListAllSystems(ctx *armadacontext.Context) ([]System, error) {
	defer t.observe(OpListAllSystems, t.clock.Now())
	return t.inner.ListAllSystems(ctx)
}

func (t *Timed) ReadSystem(ctx *armadacontext.Context, system System) (SystemInfo, error) {
	defer t.observe(OpReadSystem, t.clock.Now())
	return t.inner.ReadSystem(ctx, system)
}

func (t *Timed) ListTiers(ctx *armadacontext.Context, system System) ([]string, error) {
	defer t.observe(OpListTiers, t.clock.Now())
	return t.inner.ListTiers(ctx, system)
}

func (t *Timed) ListBuckets(ctx *armadacontext.Context, system System) ([]string, error) {
	defer t.observe(OpListBuckets, t.clock.Now())
	return t.inner.ListBuckets(ctx, system)
}

func (t *Timed) GetSystemRoles(ctx *armadacontext.Context, system System) ([]string, error) {
	defer t.observe(OpGetSystemRoles, t.clock.Now())
	return t.inner.GetSystemRoles(ctx, system)
}

func (t *Timed) ChunksAndObjectsCount(ctx *armadacontext.Context, systemId string) (ObjectCounts, error) {
	defer t.observe(OpChunksAndObjectsCount, t.clock.Now())
	return t.inner.ChunksAndObjectsCount(ctx, systemId)
}

func (t *Timed) ListNodes(ctx *armadacontext.Context, systemId string) ([]Node, error) {
	defer t.observe(OpListNodes, t.clock.Now())
	return t.inner.ListNodes(ctx, systemId)
}
