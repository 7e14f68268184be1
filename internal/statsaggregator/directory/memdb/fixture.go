package memdb

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/G-Research/phonehome/internal/statsaggregator/directory"
)

// Fixture is the on-disk description of a cluster.
type Fixture struct {
	ClusterId string          `yaml:"clusterId"`
	Systems   []SystemFixture `yaml:"systems"`
}

type SystemFixture struct {
	directory.System `yaml:",inline"`
	Info             directory.SystemInfo   `yaml:"info"`
	Tiers            []string               `yaml:"tiers"`
	Buckets          []string               `yaml:"buckets"`
	Roles            []string               `yaml:"roles"`
	Objects          directory.ObjectCounts `yaml:"objects"`
	Nodes            []directory.Node       `yaml:"nodes"`
}

func LoadFixture(path string) (*Fixture, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ParseFixture(contents)
}

func ParseFixture(contents []byte) (*Fixture, error) {
	fixture := &Fixture{}
	if err := yaml.UnmarshalStrict(contents, fixture); err != nil {
		return nil, errors.Wrap(err, "parsing directory fixture")
	}
	return fixture, nil
}
