// Package directory defines the read-only views of the cluster that the stats collectors query.
package directory

import (
	"github.com/G-Research/phonehome/internal/common/armadacontext"
)

// System identifies a system (tenant) in the cluster.
type System struct {
	Id   string `yaml:"id"`
	Name string `yaml:"name"`
}

type SystemStorage struct {
	Alloc int64 `yaml:"alloc"`
	Used  int64 `yaml:"used"`
	Total int64 `yaml:"total"`
}

type SystemNodes struct {
	Count  int `yaml:"count"`
	Online int `yaml:"online"`
}

// SystemInfo is the read model of a single system.
type SystemInfo struct {
	Storage SystemStorage `yaml:"storage"`
	Nodes   SystemNodes   `yaml:"nodes"`
}

type NodeStorage struct {
	Alloc int64 `yaml:"alloc"`
	Used  int64 `yaml:"used"`
	Free  int64 `yaml:"free"`
}

type OsInfo struct {
	// As reported by the node, e.g. Linux, Darwin or Windows_NT.
	OsType string `yaml:"ostype"`
	// Seconds.
	Uptime int64 `yaml:"uptime"`
}

type Node struct {
	Name    string      `yaml:"name"`
	Storage NodeStorage `yaml:"storage"`
	OsInfo  OsInfo      `yaml:"osInfo"`
}

type ObjectCounts struct {
	Chunks  int64 `yaml:"chunks"`
	Objects int64 `yaml:"objects"`
}

type ClusterDirectory interface {
	GetClusterId(ctx *armadacontext.Context) (string, error)
}

type SystemDirectory interface {
	// ListAllSystems returns the systems of every tenant.
	ListAllSystems(ctx *armadacontext.Context) ([]System, error)
	ReadSystem(ctx *armadacontext.Context, system System) (SystemInfo, error)
}

type TierDirectory interface {
	ListTiers(ctx *armadacontext.Context, system System) ([]string, error)
}

type BucketDirectory interface {
	ListBuckets(ctx *armadacontext.Context, system System) ([]string, error)
}

type AccountDirectory interface {
	GetSystemRoles(ctx *armadacontext.Context, system System) ([]string, error)
}

type ObjectDirectory interface {
	ChunksAndObjectsCount(ctx *armadacontext.Context, systemId string) (ObjectCounts, error)
}

type NodeDirectory interface {
	ListNodes(ctx *armadacontext.Context, systemId string) ([]Node, error)
}

// Directory is the complete view needed by the collectors.
type Directory interface {
	ClusterDirectory
	SystemDirectory
	TierDirectory
	BucketDirectory
	AccountDirectory
	ObjectDirectory
	NodeDirectory
}
