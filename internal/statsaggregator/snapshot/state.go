package snapshot

import "fmt"

// State is the position of an Assembler in its cycle.
type State int32

const (
	Idle State = iota
	CollectingSystems
	CollectingNodes
	CollectingOps
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case CollectingSystems:
		return "COLLECTING_SYSTEMS"
	case CollectingNodes:
		return "COLLECTING_NODES"
	case CollectingOps:
		return "COLLECTING_OPS"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// CycleError is returned by Assemble when a stage fails. The accompanying snapshot is always empty.
type CycleError struct {
	// The collecting state the cycle was in when it failed.
	Stage State
	Err   error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("stats cycle failed in %s: %v", e.Stage, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}

func (e *CycleError) Cause() error {
	return e.Err
}
