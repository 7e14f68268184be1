// Package snapshot assembles the per-cycle stats payload from the systems, nodes and ops collectors.
package snapshot

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/G-Research/phonehome/internal/common/armadacontext"
	"github.com/G-Research/phonehome/internal/common/logging"
)

type SystemsCollector interface {
	Collect(ctx *armadacontext.Context) (*SystemsStats, error)
}

type NodesCollector interface {
	Collect(ctx *armadacontext.Context) (*NodesStats, error)
}

type OpsCollector interface {
	Collect(ctx *armadacontext.Context) (OpsStats, error)
}

// PreCycleHook runs before any stage is collected. Its failure is logged and does not affect the cycle.
type PreCycleHook func(ctx *armadacontext.Context) error

// TransitionHook observes every state change of an Assembler.
type TransitionHook func(ctx *armadacontext.Context, from State, to State)

// Assembler runs the collectors in sequence and merges their output into a Snapshot.
// Calls to Assemble are serialised.
type Assembler struct {
	systems      SystemsCollector
	nodes        NodesCollector
	ops          OpsCollector
	preCycleHook PreCycleHook
	transitions  []TransitionHook
	state        *atomic.Int32
	mu           sync.Mutex
}

func NewAssembler(systems SystemsCollector, nodes NodesCollector, ops OpsCollector) *Assembler {
	return &Assembler{
		systems: systems,
		nodes:   nodes,
		ops:     ops,
		state:   atomic.NewInt32(int32(Idle)),
	}
}

func (a *Assembler) WithPreCycleHook(hook PreCycleHook) *Assembler {
	a.preCycleHook = hook
	return a
}

func (a *Assembler) OnTransition(hook TransitionHook) *Assembler {
	a.transitions = append(a.transitions, hook)
	return a
}

// State returns the current state. After Assemble returns it is either Done or Failed.
func (a *Assembler) State() State {
	return State(a.state.Load())
}

// Assemble collects systems, nodes and ops stats in that order. If any stage fails no further stage runs
// and the empty snapshot is returned together with a *CycleError naming the failed stage.
func (a *Assembler) Assemble(ctx *armadacontext.Context) (*Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.transition(ctx, Idle)
	if a.preCycleHook != nil {
		if err := a.preCycleHook(ctx); err != nil {
			logging.WithStacktrace(ctx.Log, err).Info("Pre-cycle hook failed; continuing")
		}
	}

	a.transition(ctx, CollectingSystems)
	sysStats, err := a.systems.Collect(ctx)
	if err != nil {
		return a.fail(ctx, err)
	}

	a.transition(ctx, CollectingNodes)
	nodeStats, err := a.nodes.Collect(ctx)
	if err != nil {
		return a.fail(ctx, err)
	}

	a.transition(ctx, CollectingOps)
	opsStats, err := a.ops.Collect(ctx)
	if err != nil {
		return a.fail(ctx, err)
	}

	a.transition(ctx, Done)
	return &Snapshot{
		SysStats:  sysStats,
		NodeStats: nodeStats,
		OpsStats:  opsStats,
	}, nil
}

func (a *Assembler) fail(ctx *armadacontext.Context, err error) (*Snapshot, error) {
	stage := a.State()
	a.transition(ctx, Failed)
	return Empty(), &CycleError{Stage: stage, Err: err}
}

func (a *Assembler) transition(ctx *armadacontext.Context, to State) {
	from := State(a.state.Swap(int32(to)))
	ctx.Log.Debugf("Stats assembler %s -> %s", from, to)
	for _, hook := range a.transitions {
		hook(ctx, from, to)
	}
}
