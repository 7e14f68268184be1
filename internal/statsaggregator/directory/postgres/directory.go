// Package postgres is a read-only directory over the cluster schema in Postgres.
package postgres

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/G-Research/phonehome/internal/common/armadacontext"
	"github.com/G-Research/phonehome/internal/common/armadaerrors"
	"github.com/G-Research/phonehome/internal/statsaggregator/directory"
)

const clusterIdCacheKey = "clusterId"

var (
	clusterTable = goqu.T("cluster")
	systemsTable = goqu.T("systems")
	tiersTable   = goqu.T("tiers")
	bucketsTable = goqu.T("buckets")
	rolesTable   = goqu.T("roles")
	objectsTable = goqu.T("objects")
	nodesTable   = goqu.T("nodes")

	col_id           = goqu.C("id")
	col_name         = goqu.C("name")
	col_ordinal      = goqu.C("ordinal")
	col_systemId     = goqu.C("system_id")
	col_storageAlloc = goqu.C("storage_alloc")
	col_storageUsed  = goqu.C("storage_used")
	col_storageTotal = goqu.C("storage_total")
	col_storageFree  = goqu.C("storage_free")
	col_nodesCount   = goqu.C("nodes_count")
	col_nodesOnline  = goqu.C("nodes_online")
	col_chunks       = goqu.C("chunks")
	col_objects      = goqu.C("objects")
	col_osType       = goqu.C("os_type")
	col_uptime       = goqu.C("uptime")
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Directory implements directory.Directory by querying Postgres.
// The cluster id never changes at runtime and is cached.
type Directory struct {
	db      Querier
	dialect goqu.DialectWrapper
	cache   *cache.Cache
}

func New(db Querier, clusterIdCacheExpiry time.Duration) *Directory {
	return &Directory{
		db:      db,
		dialect: goqu.Dialect("postgres"),
		cache:   cache.New(clusterIdCacheExpiry, 2*clusterIdCacheExpiry),
	}
}

func (d *Directory) GetClusterId(ctx *armadacontext.Context) (string, error) {
	if cached, ok := d.cache.Get(clusterIdCacheKey); ok {
		return cached.(string), nil
	}
	query, args, err := d.clusterIdSql()
	if err != nil {
		return "", err
	}
	var clusterId string
	if err := d.db.QueryRow(ctx, query, args...).Scan(&clusterId); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", errors.WithStack(&armadaerrors.ErrNotFound{Type: "cluster", Value: "id"})
		}
		return "", queryError(err)
	}
	d.cache.SetDefault(clusterIdCacheKey, clusterId)
	return clusterId, nil
}

func (d *Directory) ListAllSystems(ctx *armadacontext.Context) ([]directory.System, error) {
	query, args, err := d.listSystemsSql()
	if err != nil {
		return nil, err
	}
	rows, err := d.db.Query(ctx, query, args...)
	if err != nil {
		return nil, queryError(err)
	}
	defer rows.Close()
	systems := []directory.System{}
	for rows.Next() {
		var system directory.System
		if err := rows.Scan(&system.Id, &system.Name); err != nil {
			return nil, queryError(err)
		}
		systems = append(systems, system)
	}
	return systems, queryError(rows.Err())
}

func (d *Directory) ReadSystem(ctx *armadacontext.Context, system directory.System) (directory.SystemInfo, error) {
	query, args, err := d.readSystemSql(system.Id)
	if err != nil {
		return directory.SystemInfo{}, err
	}
	var info directory.SystemInfo
	err = d.db.QueryRow(ctx, query, args...).Scan(
		&info.Storage.Alloc,
		&info.Storage.Used,
		&info.Storage.Total,
		&info.Nodes.Count,
		&info.Nodes.Online,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return directory.SystemInfo{}, errors.WithStack(&armadaerrors.ErrNotFound{Type: "system", Value: system.Id})
	}
	return info, queryError(err)
}

func (d *Directory) ListTiers(ctx *armadacontext.Context, system directory.System) ([]string, error) {
	return d.listNames(ctx, tiersTable, system.Id)
}

func (d *Directory) ListBuckets(ctx *armadacontext.Context, system directory.System) ([]string, error) {
	return d.listNames(ctx, bucketsTable, system.Id)
}

func (d *Directory) GetSystemRoles(ctx *armadacontext.Context, system directory.System) ([]string, error) {
	return d.listNames(ctx, rolesTable, system.Id)
}

func (d *Directory) listNames(ctx *armadacontext.Context, table exp.IdentifierExpression, systemId string) ([]string, error) {
	query, args, err := d.listNamesSql(table, systemId)
	if err != nil {
		return nil, err
	}
	rows, err := d.db.Query(ctx, query, args...)
	if err != nil {
		return nil, queryError(err)
	}
	defer rows.Close()
	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, queryError(err)
		}
		names = append(names, name)
	}
	return names, queryError(rows.Err())
}

func (d *Directory) ChunksAndObjectsCount(ctx *armadacontext.Context, systemId string) (directory.ObjectCounts, error) {
	query, args, err := d.objectCountsSql(systemId)
	if err != nil {
		return directory.ObjectCounts{}, err
	}
	var counts directory.ObjectCounts
	err = d.db.QueryRow(ctx, query, args...).Scan(&counts.Chunks, &counts.Objects)
	if errors.Is(err, pgx.ErrNoRows) {
		return directory.ObjectCounts{}, nil
	}
	return counts, queryError(err)
}

func (d *Directory) ListNodes(ctx *armadacontext.Context, systemId string) ([]directory.Node, error) {
	query, args, err := d.listNodesSql(systemId)
	if err != nil {
		return nil, err
	}
	rows, err := d.db.Query(ctx, query, args...)
	if err != nil {
		return nil, queryError(err)
	}
	defer rows.Close()
	nodes := []directory.Node{}
	for rows.Next() {
		var node directory.Node
		err := rows.Scan(
			&node.Name,
			&node.Storage.Alloc,
			&node.Storage.Used,
			&node.Storage.Free,
			&node.OsInfo.OsType,
			&node.OsInfo.Uptime,
		)
		if err != nil {
			return nil, queryError(err)
		}
		nodes = append(nodes, node)
	}
	return nodes, queryError(rows.Err())
}

func (d *Directory) clusterIdSql() (string, []any, error) {
	return toSql(d.dialect.From(clusterTable).Select(col_id).Limit(1))
}

func (d *Directory) listSystemsSql() (string, []any, error) {
	return toSql(d.dialect.From(systemsTable).Select(col_id, col_name).Order(col_ordinal.Asc()))
}

func (d *Directory) readSystemSql(systemId string) (string, []any, error) {
	return toSql(d.dialect.
		From(systemsTable).
		Select(col_storageAlloc, col_storageUsed, col_storageTotal, col_nodesCount, col_nodesOnline).
		Where(col_id.Eq(systemId)))
}

func (d *Directory) listNamesSql(table exp.IdentifierExpression, systemId string) (string, []any, error) {
	return toSql(d.dialect.From(table).Select(col_name).Where(col_systemId.Eq(systemId)).Order(col_name.Asc()))
}

func (d *Directory) objectCountsSql(systemId string) (string, []any, error) {
	return toSql(d.dialect.From(objectsTable).Select(col_chunks, col_objects).Where(col_systemId.Eq(systemId)))
}

func (d *Directory) listNodesSql(systemId string) (string, []any, error) {
	return toSql(d.dialect.
		From(nodesTable).
		Select(col_name, col_storageAlloc, col_storageUsed, col_storageFree, col_osType, col_uptime).
		Where(col_systemId.Eq(systemId)).
		Order(col_ordinal.Asc()))
}

func toSql(ds *goqu.SelectDataset) (string, []any, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return "", nil, errors.WithStack(err)
	}
	return query, args, nil
}

// queryError marks a missing table as an unmigrated schema so operators know to run migrateDatabase.
func queryError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return errors.Wrap(err, "cluster schema is missing; run migrateDatabase")
	}
	return errors.WithStack(err)
}
