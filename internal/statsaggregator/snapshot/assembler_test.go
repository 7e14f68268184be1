package snapshot

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/phonehome/internal/common/armadacontext"
)

type systemsFunc func(ctx *armadacontext.Context) (*SystemsStats, error)

func (f systemsFunc) Collect(ctx *armadacontext.Context) (*SystemsStats, error) { return f(ctx) }

type nodesFunc func(ctx *armadacontext.Context) (*NodesStats, error)

func (f nodesFunc) Collect(ctx *armadacontext.Context) (*NodesStats, error) { return f(ctx) }

type opsFunc func(ctx *armadacontext.Context) (OpsStats, error)

func (f opsFunc) Collect(ctx *armadacontext.Context) (OpsStats, error) { return f(ctx) }

var (
	testSystems = &SystemsStats{ClusterId: "c", Version: "1", AgentVersion: "2", Count: 0, Systems: []SystemStats{}}
	testNodes   = &NodesStats{Count: 1, Os: OsCounts{Linux: 1}, Histograms: map[string]map[string]int64{"Uptime(Days)": {"short": 1}}}
	testOps     = OpsStats{"read": "fast:1"}
)

// recorder builds collectors that record the order in which they ran and fail when told to.
type recorder struct {
	calls  []string
	failOn string
}

func (r *recorder) assembler() *Assembler {
	return NewAssembler(
		systemsFunc(func(*armadacontext.Context) (*SystemsStats, error) {
			r.calls = append(r.calls, "systems")
			if r.failOn == "systems" {
				return nil, errors.New("systems boom")
			}
			return testSystems, nil
		}),
		nodesFunc(func(*armadacontext.Context) (*NodesStats, error) {
			r.calls = append(r.calls, "nodes")
			if r.failOn == "nodes" {
				return nil, errors.New("nodes boom")
			}
			return testNodes, nil
		}),
		opsFunc(func(*armadacontext.Context) (OpsStats, error) {
			r.calls = append(r.calls, "ops")
			if r.failOn == "ops" {
				return nil, errors.New("ops boom")
			}
			return testOps, nil
		}),
	)
}

func TestAssembler_Success(t *testing.T) {
	r := &recorder{}
	var transitions []State
	a := r.assembler().OnTransition(func(_ *armadacontext.Context, _ State, to State) {
		transitions = append(transitions, to)
	})
	assert.Equal(t, Idle, a.State())

	snapshot, err := a.Assemble(armadacontext.Background())
	require.NoError(t, err)
	assert.Equal(t, &Snapshot{SysStats: testSystems, NodeStats: testNodes, OpsStats: testOps}, snapshot)
	assert.Equal(t, []string{"systems", "nodes", "ops"}, r.calls)
	assert.Equal(t, []State{Idle, CollectingSystems, CollectingNodes, CollectingOps, Done}, transitions)
	assert.Equal(t, Done, a.State())
	assert.False(t, snapshot.IsEmpty())
}

func TestAssembler_StageFailure(t *testing.T) {
	tests := map[string]struct {
		failOn    string
		wantStage State
		wantCalls []string
	}{
		"systems": {failOn: "systems", wantStage: CollectingSystems, wantCalls: []string{"systems"}},
		"nodes":   {failOn: "nodes", wantStage: CollectingNodes, wantCalls: []string{"systems", "nodes"}},
		"ops":     {failOn: "ops", wantStage: CollectingOps, wantCalls: []string{"systems", "nodes", "ops"}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			r := &recorder{failOn: tc.failOn}
			a := r.assembler()

			snapshot, err := a.Assemble(armadacontext.Background())

			require.Error(t, err)
			var cycleErr *CycleError
			require.True(t, errors.As(err, &cycleErr))
			assert.Equal(t, tc.wantStage, cycleErr.Stage)
			assert.EqualError(t, errors.Cause(err), tc.failOn+" boom")
			assert.Equal(t, tc.wantCalls, r.calls)
			assert.Equal(t, Failed, a.State())

			assert.True(t, snapshot.IsEmpty())
			payload, err := json.Marshal(snapshot)
			require.NoError(t, err)
			assert.JSONEq(t, `{}`, string(payload))
		})
	}
}

func TestAssembler_RecoversAfterFailedCycle(t *testing.T) {
	r := &recorder{failOn: "systems"}
	a := r.assembler()
	_, err := a.Assemble(armadacontext.Background())
	require.Error(t, err)

	r.failOn = ""
	snapshot, err := a.Assemble(armadacontext.Background())
	require.NoError(t, err)
	assert.False(t, snapshot.IsEmpty())
	assert.Equal(t, Done, a.State())
}

func TestAssembler_PreCycleHookFailureIsIgnored(t *testing.T) {
	r := &recorder{}
	hookCalled := false
	a := r.assembler().WithPreCycleHook(func(*armadacontext.Context) error {
		hookCalled = true
		return errors.New("support account lookup failed")
	})

	snapshot, err := a.Assemble(armadacontext.Background())
	require.NoError(t, err)
	assert.True(t, hookCalled)
	assert.False(t, snapshot.IsEmpty())
}

func TestSnapshot_JSON(t *testing.T) {
	snapshot := &Snapshot{
		SysStats: &SystemsStats{
			ClusterId:    "cluster-a",
			Version:      "Unknown",
			AgentVersion: "Unknown",
			Count:        1,
			Systems: []SystemStats{{
				Tiers:           2,
				Buckets:         3,
				Chunks:          4,
				Objects:         5,
				Roles:           1,
				AllocatedSpace:  10,
				UsedSpace:       6,
				TotalSpace:      20,
				AssociatedNodes: 3,
				Properties:      NodeProperties{On: 2, Off: 1},
			}},
		},
		NodeStats: &NodesStats{
			Count: 2,
			Os:    OsCounts{Linux: 1, Osx: 1},
			Histograms: map[string]map[string]int64{
				"Uptime(Days)": {"short": 1, "mid": 0, "long": 1},
			},
		},
		OpsStats: OpsStats{},
	}
	payload, err := json.Marshal(snapshot)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"sys_stats": {
			"clusterid": "cluster-a",
			"version": "Unknown",
			"agent_version": "Unknown",
			"count": 1,
			"systems": [{
				"tiers": 2, "buckets": 3, "chunks": 4, "objects": 5, "roles": 1,
				"allocated_space": 10, "used_space": 6, "total_space": 20,
				"associated_nodes": 3, "properties": {"on": 2, "off": 1}
			}]
		},
		"node_stats": {
			"count": 2,
			"os": {"win": 0, "osx": 1, "linux": 1, "other": 0},
			"Uptime(Days)": {"short": 1, "mid": 0, "long": 1}
		},
		"ops_stats": {}
	}`, string(payload))

	decoded := &Snapshot{}
	require.NoError(t, json.Unmarshal(payload, decoded))
	assert.Equal(t, snapshot, decoded)
}

func TestSnapshot_EmptyMarshalsToEmptyObject(t *testing.T) {
	payload, err := json.Marshal(Empty())
	require.NoError(t, err)
	assert.Equal(t, "{}", string(payload))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "COLLECTING_NODES", CollectingNodes.String())
	assert.Equal(t, "State(42)", State(42).String())
}
