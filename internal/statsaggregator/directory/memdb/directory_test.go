package memdb

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/phonehome/internal/common/armadacontext"
	"github.com/G-Research/phonehome/internal/common/armadaerrors"
	"github.com/G-Research/phonehome/internal/statsaggregator/directory"
)

var _ directory.Directory = &Directory{}

func loadTestDirectory(t *testing.T) *Directory {
	t.Helper()
	fixture, err := LoadFixture("testdata/cluster.yaml")
	require.NoError(t, err)
	d, err := NewFromFixture(fixture)
	require.NoError(t, err)
	return d
}

func TestDirectory_FromFixture(t *testing.T) {
	ctx := armadacontext.Background()
	d := loadTestDirectory(t)

	clusterId, err := d.GetClusterId(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cluster-a", clusterId)

	systems, err := d.ListAllSystems(ctx)
	require.NoError(t, err)
	assert.Equal(t, []directory.System{{Id: "sys-1", Name: "first"}, {Id: "sys-2", Name: "second"}}, systems)

	info, err := d.ReadSystem(ctx, systems[0])
	require.NoError(t, err)
	assert.Equal(t, directory.SystemInfo{
		Storage: directory.SystemStorage{Alloc: 1099511627776, Used: 536870912000, Total: 2199023255552},
		Nodes:   directory.SystemNodes{Count: 3, Online: 2},
	}, info)

	tiers, err := d.ListTiers(ctx, systems[0])
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tier-a", "tier-b"}, tiers)

	buckets, err := d.ListBuckets(ctx, systems[0])
	require.NoError(t, err)
	assert.Len(t, buckets, 3)

	roles, err := d.GetSystemRoles(ctx, systems[1])
	require.NoError(t, err)
	assert.Empty(t, roles)

	counts, err := d.ChunksAndObjectsCount(ctx, "sys-1")
	require.NoError(t, err)
	assert.Equal(t, directory.ObjectCounts{Chunks: 120, Objects: 40}, counts)

	counts, err = d.ChunksAndObjectsCount(ctx, "sys-2")
	require.NoError(t, err)
	assert.Equal(t, directory.ObjectCounts{}, counts)

	nodes, err := d.ListNodes(ctx, "sys-1")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "node-1", nodes[0].Name)
	assert.Equal(t, "Linux", nodes[0].OsInfo.OsType)
	assert.Equal(t, int64(3024000), nodes[1].OsInfo.Uptime)
}

func TestDirectory_SystemsKeepInsertionOrder(t *testing.T) {
	ctx := armadacontext.Background()
	d, err := New("c")
	require.NoError(t, err)
	for _, id := range []string{"zeta", "alpha", "mu"} {
		require.NoError(t, d.AddSystem(SystemFixture{System: directory.System{Id: id}}))
	}
	systems, err := d.ListAllSystems(ctx)
	require.NoError(t, err)
	assert.Equal(t, []directory.System{{Id: "zeta"}, {Id: "alpha"}, {Id: "mu"}}, systems)
}

func TestDirectory_AddSystemRejectsDuplicatesAndMissingIds(t *testing.T) {
	d, err := New("c")
	require.NoError(t, err)
	require.NoError(t, d.AddSystem(SystemFixture{System: directory.System{Id: "sys"}}))

	err = d.AddSystem(SystemFixture{System: directory.System{Id: "sys"}})
	assert.True(t, armadaerrors.IsInvalidArgument(err))
	err = d.AddSystem(SystemFixture{})
	assert.True(t, armadaerrors.IsInvalidArgument(err))

	for name, fixture := range map[string]SystemFixture{
		"tiers":   {System: directory.System{Id: "dup-tiers"}, Tiers: []string{"t1", "t1"}},
		"buckets": {System: directory.System{Id: "dup-buckets"}, Buckets: []string{"b1", "b2", "b1"}},
		"roles":   {System: directory.System{Id: "dup-roles"}, Roles: []string{"admin", "admin"}},
	} {
		t.Run(name, func(t *testing.T) {
			err := d.AddSystem(fixture)
			assert.True(t, armadaerrors.IsInvalidArgument(err))

			// The whole system is rolled back.
			systems, err := d.ListAllSystems(armadacontext.Background())
			require.NoError(t, err)
			assert.Equal(t, []directory.System{{Id: "sys"}}, systems)
		})
	}
}

func TestDirectory_ReadUnknownSystem(t *testing.T) {
	d := loadTestDirectory(t)
	_, err := d.ReadSystem(armadacontext.Background(), directory.System{Id: "missing"})
	assert.True(t, armadaerrors.IsNotFound(err))
}

func TestDirectory_FaultInjection(t *testing.T) {
	ctx := armadacontext.Background()
	d := loadTestDirectory(t)
	boom := errors.New("boom")

	d.FailOn(ListTiers, "sys-2", boom)
	_, err := d.ListTiers(ctx, directory.System{Id: "sys-1"})
	assert.NoError(t, err)
	_, err = d.ListTiers(ctx, directory.System{Id: "sys-2"})
	assert.ErrorIs(t, err, boom)

	d.FailOn(ListNodes, AnySystem, boom)
	_, err = d.ListNodes(ctx, "sys-1")
	assert.ErrorIs(t, err, boom)

	d.FailOn(GetClusterId, AnySystem, boom)
	_, err = d.GetClusterId(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestParseFixture_RejectsUnknownFields(t *testing.T) {
	_, err := ParseFixture([]byte("clusterId: a\nsistems: []\n"))
	assert.Error(t, err)
}
