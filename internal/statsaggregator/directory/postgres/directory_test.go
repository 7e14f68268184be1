package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/phonehome/internal/common/armadacontext"
	"github.com/G-Research/phonehome/internal/common/armadaerrors"
	"github.com/G-Research/phonehome/internal/common/database"
	"github.com/G-Research/phonehome/internal/statsaggregator/directory"
)

var _ directory.Directory = &Directory{}

func TestDirectory_Sql(t *testing.T) {
	d := New(nil, time.Minute)

	query, _, err := d.listSystemsSql()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "name" FROM "systems" ORDER BY "ordinal" ASC`, query)

	query, args, err := d.readSystemSql("sys-1")
	require.NoError(t, err)
	assert.Contains(t, query, `FROM "systems" WHERE ("id" = $1)`)
	assert.Equal(t, []any{"sys-1"}, args)

	query, args, err = d.listNamesSql(tiersTable, "sys-1")
	require.NoError(t, err)
	assert.Equal(t, `SELECT "name" FROM "tiers" WHERE ("system_id" = $1) ORDER BY "name" ASC`, query)
	assert.Equal(t, []any{"sys-1"}, args)

	query, _, err = d.listNodesSql("sys-1")
	require.NoError(t, err)
	assert.Contains(t, query, `FROM "nodes" WHERE ("system_id" = $1) ORDER BY "ordinal" ASC`)

	query, _, err = d.objectCountsSql("sys-1")
	require.NoError(t, err)
	assert.Contains(t, query, `SELECT "chunks", "objects" FROM "objects"`)
}

func TestDirectory_ClusterIdIsCached(t *testing.T) {
	db := &clusterIdQuerier{clusterId: "cluster-a"}
	d := New(db, time.Minute)
	ctx := armadacontext.Background()

	for i := 0; i < 3; i++ {
		clusterId, err := d.GetClusterId(ctx)
		require.NoError(t, err)
		assert.Equal(t, "cluster-a", clusterId)
	}
	assert.Equal(t, 1, db.calls)
}

func TestDirectory_ClusterIdMissing(t *testing.T) {
	d := New(&clusterIdQuerier{err: pgx.ErrNoRows}, time.Minute)
	_, err := d.GetClusterId(armadacontext.Background())
	assert.True(t, armadaerrors.IsNotFound(err))
}

func TestDirectory_ClusterIdErrorNotCached(t *testing.T) {
	db := &clusterIdQuerier{err: errors.New("connection refused")}
	d := New(db, time.Minute)
	ctx := armadacontext.Background()

	_, err := d.GetClusterId(ctx)
	assert.Error(t, err)

	db.err = nil
	db.clusterId = "cluster-a"
	clusterId, err := d.GetClusterId(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cluster-a", clusterId)
}

func TestDirectory_UnmigratedSchema(t *testing.T) {
	undefinedTable := &pgconn.PgError{Code: pgerrcode.UndefinedTable, Message: `relation "cluster" does not exist`}
	d := New(&clusterIdQuerier{err: undefinedTable}, time.Minute)

	_, err := d.GetClusterId(armadacontext.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run migrateDatabase")
	assert.ErrorIs(t, err, undefinedTable)
}

func TestDirectory_AgainstPostgres(t *testing.T) {
	if !database.TestPostgresAvailable() {
		t.Skipf("%s not set", database.TestPostgresEnvVar)
	}
	migrations, err := Migrations()
	require.NoError(t, err)

	err = database.WithTestDb(migrations, func(db *pgxpool.Pool) error {
		ctx := armadacontext.Background()
		for _, stmt := range []string{
			`INSERT INTO cluster (id) VALUES ('cluster-a')`,
			`INSERT INTO systems (id, name, storage_alloc, storage_used, storage_total, nodes_count, nodes_online) VALUES ('sys-2', 'second', 1, 2, 3, 4, 3)`,
			`INSERT INTO systems (id, name) VALUES ('sys-1', 'first')`,
			`INSERT INTO tiers (system_id, name) VALUES ('sys-2', 'b'), ('sys-2', 'a')`,
			`INSERT INTO objects (system_id, chunks, objects) VALUES ('sys-2', 10, 5)`,
			`INSERT INTO nodes (system_id, name, storage_alloc, storage_used, storage_free, os_type, uptime) VALUES ('sys-2', 'n1', 1, 2, 3, 'Linux', 86400)`,
		} {
			if _, err := db.Exec(ctx, stmt); err != nil {
				return err
			}
		}

		d := New(db, time.Minute)
		clusterId, err := d.GetClusterId(ctx)
		require.NoError(t, err)
		assert.Equal(t, "cluster-a", clusterId)

		systems, err := d.ListAllSystems(ctx)
		require.NoError(t, err)
		assert.Equal(t, []directory.System{{Id: "sys-2", Name: "second"}, {Id: "sys-1", Name: "first"}}, systems)

		info, err := d.ReadSystem(ctx, systems[0])
		require.NoError(t, err)
		assert.Equal(t, directory.SystemInfo{
			Storage: directory.SystemStorage{Alloc: 1, Used: 2, Total: 3},
			Nodes:   directory.SystemNodes{Count: 4, Online: 3},
		}, info)

		tiers, err := d.ListTiers(ctx, systems[0])
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, tiers)

		buckets, err := d.ListBuckets(ctx, systems[0])
		require.NoError(t, err)
		assert.Empty(t, buckets)

		counts, err := d.ChunksAndObjectsCount(ctx, "sys-1")
		require.NoError(t, err)
		assert.Equal(t, directory.ObjectCounts{}, counts)

		nodes, err := d.ListNodes(ctx, "sys-2")
		require.NoError(t, err)
		assert.Equal(t, []directory.Node{{
			Name:    "n1",
			Storage: directory.NodeStorage{Alloc: 1, Used: 2, Free: 3},
			OsInfo:  directory.OsInfo{OsType: "Linux", Uptime: 86400},
		}}, nodes)

		_, err = d.ReadSystem(ctx, directory.System{Id: "missing"})
		assert.True(t, armadaerrors.IsNotFound(err))
		return nil
	})
	require.NoError(t, err)
}

type clusterIdQuerier struct {
	clusterId string
	err       error
	calls     int
}

func (q *clusterIdQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("unexpected query")
}

func (q *clusterIdQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	q.calls++
	return clusterIdRow{q.clusterId, q.err}
}

type clusterIdRow struct {
	clusterId string
	err       error
}

func (r clusterIdRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.clusterId
	return nil
}
