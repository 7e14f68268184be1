// Package memdb is an in-memory directory backed by go-memdb, used for local runs and tests.
package memdb

import (
	"sort"
	"sync"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"

	"github.com/G-Research/phonehome/internal/common/armadacontext"
	"github.com/G-Research/phonehome/internal/common/armadaerrors"
	"github.com/G-Research/phonehome/internal/statsaggregator/directory"
)

const (
	systemsTable = "systems"
	tiersTable   = "tiers"
	bucketsTable = "buckets"
	rolesTable   = "roles"
	objectsTable = "objects"
	nodesTable   = "nodes"

	idIndex     = "id"     // primary key
	systemIndex = "system" // lookup of all rows belonging to a system
)

// Operation names a directory query that faults can be injected into.
type Operation string

const (
	GetClusterId          Operation = "GetClusterId"
	ListAllSystems        Operation = "ListAllSystems"
	ReadSystem            Operation = "ReadSystem"
	ListTiers             Operation = "ListTiers"
	ListBuckets           Operation = "ListBuckets"
	GetSystemRoles        Operation = "GetSystemRoles"
	ChunksAndObjectsCount Operation = "ChunksAndObjectsCount"
	ListNodes             Operation = "ListNodes"
)

// AnySystem matches every system when injecting faults.
const AnySystem = ""

type systemRecord struct {
	Id    string
	Order int
	Name  string
	Info  directory.SystemInfo
}

type namedRecord struct {
	SystemId string
	Name     string
}

type objectsRecord struct {
	SystemId string
	Counts   directory.ObjectCounts
}

type nodeRecord struct {
	SystemId string
	Order    int
	Node     directory.Node
}

type fault struct {
	operation Operation
	systemId  string
}

// Directory implements directory.Directory on top of an in-memory database.
type Directory struct {
	clusterId string
	db        *memdb.MemDB
	// Number of systems inserted so far; used to list systems in insertion order.
	systemCount int
	faults      map[fault]error
	mu          sync.Mutex
}

func New(clusterId string) (*Directory, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Directory{
		clusterId: clusterId,
		db:        db,
		faults:    map[fault]error{},
	}, nil
}

func NewFromFixture(fixture *Fixture) (*Directory, error) {
	d, err := New(fixture.ClusterId)
	if err != nil {
		return nil, err
	}
	for _, system := range fixture.Systems {
		if err := d.AddSystem(system); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// AddSystem inserts a system together with everything that belongs to it.
func (d *Directory) AddSystem(system SystemFixture) error {
	if system.Id == "" {
		return &armadaerrors.ErrInvalidArgument{Name: "id", Value: system.Id, Message: "systems must have an id"}
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	txn := d.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(systemsTable, idIndex, system.Id)
	if err != nil {
		return errors.WithStack(err)
	}
	if existing != nil {
		return &armadaerrors.ErrInvalidArgument{Name: "id", Value: system.Id, Message: "system already exists"}
	}

	if err := txn.Insert(systemsTable, &systemRecord{
		Id:    system.Id,
		Order: d.systemCount,
		Name:  system.Name,
		Info:  system.Info,
	}); err != nil {
		return errors.WithStack(err)
	}
	for table, names := range map[string][]string{tiersTable: system.Tiers, bucketsTable: system.Buckets, rolesTable: system.Roles} {
		for _, name := range names {
			duplicate, err := txn.First(table, idIndex, system.Id, name)
			if err != nil {
				return errors.WithStack(err)
			}
			if duplicate != nil {
				return &armadaerrors.ErrInvalidArgument{Name: table, Value: name, Message: "listed more than once for system " + system.Id}
			}
			if err := txn.Insert(table, &namedRecord{SystemId: system.Id, Name: name}); err != nil {
				return errors.WithStack(err)
			}
		}
	}
	if err := txn.Insert(objectsTable, &objectsRecord{SystemId: system.Id, Counts: system.Objects}); err != nil {
		return errors.WithStack(err)
	}
	for i, node := range system.Nodes {
		if err := txn.Insert(nodesTable, &nodeRecord{SystemId: system.Id, Order: i, Node: node}); err != nil {
			return errors.WithStack(err)
		}
	}
	txn.Commit()
	d.systemCount++
	return nil
}

// FailOn makes every subsequent call of operation for systemId return err.
// Use AnySystem to fail the operation for every system.
func (d *Directory) FailOn(operation Operation, systemId string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults[fault{operation: operation, systemId: systemId}] = err
}

func (d *Directory) injectedFault(operation Operation, systemId string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.faults[fault{operation: operation, systemId: systemId}]; ok {
		return err
	}
	return d.faults[fault{operation: operation, systemId: AnySystem}]
}

func (d *Directory) GetClusterId(_ *armadacontext.Context) (string, error) {
	if err := d.injectedFault(GetClusterId, AnySystem); err != nil {
		return "", err
	}
	return d.clusterId, nil
}

func (d *Directory) ListAllSystems(_ *armadacontext.Context) ([]directory.System, error) {
	if err := d.injectedFault(ListAllSystems, AnySystem); err != nil {
		return nil, err
	}
	txn := d.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(systemsTable, idIndex)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var records []*systemRecord
	for obj := it.Next(); obj != nil; obj = it.Next() {
		records = append(records, obj.(*systemRecord))
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Order < records[j].Order })
	systems := make([]directory.System, len(records))
	for i, record := range records {
		systems[i] = directory.System{Id: record.Id, Name: record.Name}
	}
	return systems, nil
}

func (d *Directory) ReadSystem(_ *armadacontext.Context, system directory.System) (directory.SystemInfo, error) {
	if err := d.injectedFault(ReadSystem, system.Id); err != nil {
		return directory.SystemInfo{}, err
	}
	txn := d.db.Txn(false)
	defer txn.Abort()
	obj, err := txn.First(systemsTable, idIndex, system.Id)
	if err != nil {
		return directory.SystemInfo{}, errors.WithStack(err)
	}
	if obj == nil {
		return directory.SystemInfo{}, errors.WithStack(&armadaerrors.ErrNotFound{Type: "system", Value: system.Id})
	}
	return obj.(*systemRecord).Info, nil
}

func (d *Directory) ListTiers(_ *armadacontext.Context, system directory.System) ([]string, error) {
	if err := d.injectedFault(ListTiers, system.Id); err != nil {
		return nil, err
	}
	return d.listNames(tiersTable, system.Id)
}

func (d *Directory) ListBuckets(_ *armadacontext.Context, system directory.System) ([]string, error) {
	if err := d.injectedFault(ListBuckets, system.Id); err != nil {
		return nil, err
	}
	return d.listNames(bucketsTable, system.Id)
}

func (d *Directory) GetSystemRoles(_ *armadacontext.Context, system directory.System) ([]string, error) {
	if err := d.injectedFault(GetSystemRoles, system.Id); err != nil {
		return nil, err
	}
	return d.listNames(rolesTable, system.Id)
}

func (d *Directory) listNames(table string, systemId string) ([]string, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(table, systemIndex, systemId)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	names := []string{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		names = append(names, obj.(*namedRecord).Name)
	}
	return names, nil
}

func (d *Directory) ChunksAndObjectsCount(_ *armadacontext.Context, systemId string) (directory.ObjectCounts, error) {
	if err := d.injectedFault(ChunksAndObjectsCount, systemId); err != nil {
		return directory.ObjectCounts{}, err
	}
	txn := d.db.Txn(false)
	defer txn.Abort()
	obj, err := txn.First(objectsTable, idIndex, systemId)
	if err != nil {
		return directory.ObjectCounts{}, errors.WithStack(err)
	}
	if obj == nil {
		return directory.ObjectCounts{}, nil
	}
	return obj.(*objectsRecord).Counts, nil
}

func (d *Directory) ListNodes(_ *armadacontext.Context, systemId string) ([]directory.Node, error) {
	if err := d.injectedFault(ListNodes, systemId); err != nil {
		return nil, err
	}
	txn := d.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(nodesTable, systemIndex, systemId)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var records []*nodeRecord
	for obj := it.Next(); obj != nil; obj = it.Next() {
		records = append(records, obj.(*nodeRecord))
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Order < records[j].Order })
	nodes := make([]directory.Node, len(records))
	for i, record := range records {
		nodes[i] = record.Node
	}
	return nodes, nil
}

func schema() *memdb.DBSchema {
	systemOnly := &memdb.StringFieldIndex{Field: "SystemId"}
	systemAndName := &memdb.CompoundIndex{
		Indexes: []memdb.Indexer{
			&memdb.StringFieldIndex{Field: "SystemId"},
			&memdb.StringFieldIndex{Field: "Name"},
		},
	}
	systemAndOrder := &memdb.CompoundIndex{
		Indexes: []memdb.Indexer{
			&memdb.StringFieldIndex{Field: "SystemId"},
			&memdb.IntFieldIndex{Field: "Order"},
		},
	}
	namedTable := func(name string) *memdb.TableSchema {
		return &memdb.TableSchema{
			Name: name,
			Indexes: map[string]*memdb.IndexSchema{
				idIndex:     {Name: idIndex, Unique: true, Indexer: systemAndName},
				systemIndex: {Name: systemIndex, Indexer: systemOnly},
			},
		}
	}
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			systemsTable: {
				Name: systemsTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {Name: idIndex, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Id"}},
				},
			},
			tiersTable:   namedTable(tiersTable),
			bucketsTable: namedTable(bucketsTable),
			rolesTable:   namedTable(rolesTable),
			objectsTable: {
				Name: objectsTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {Name: idIndex, Unique: true, Indexer: systemOnly},
				},
			},
			nodesTable: {
				Name: nodesTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex:     {Name: idIndex, Unique: true, Indexer: systemAndOrder},
					systemIndex: {Name: systemIndex, Indexer: systemOnly},
				},
			},
		},
	}
}
