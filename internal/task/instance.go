package task

import (
	"fmt"
	"time"
)

// State is the lifecycle position of one Instance.
type State int32

const (
	// Pending means not all inputs are bound yet.
	Pending State = iota
	// Ready means all inputs are bound and the instance is queued for
	// admission against the thread budget.
	Ready
	// Running means the external tool process has been launched.
	Running
	// Succeeded is terminal: the tool exited zero and all declared
	// outputs exist.
	Succeeded
	// Failed is terminal: the tool exited non-zero or an output is
	// missing. Failure is per-instance and never retried.
	Failed
	// Skipped is terminal: the instance was never launched because an
	// upstream instance for its key failed, a join never matched, or a
	// skip predicate fired.
	Skipped
	// Cancelled is terminal: the run was cancelled before the instance
	// reached a terminal state on its own.
	Cancelled
)

// String implements fmt.Stringer for log and summary output.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case Succeeded, Failed, Skipped, Cancelled:
		return true
	}
	return false
}

// Instance is one invocation of a Descriptor bound to concrete inputs.
// It is owned exclusively by the scheduler; no other component may mutate
// it, and workers report results back through the scheduler's completion
// queue rather than writing here directly.
type Instance struct {
	Desc *Descriptor

	// Key is the sample identity, or "" for run-scoped tasks.
	Key string

	// Input is the merged input record the instance was created from.
	Input Record

	// Batch holds every buffered upstream record for collect tasks;
	// nil otherwise.
	Batch []Record

	// Output is populated on success with a value for each output port.
	Output Record

	// Err is set when the instance fails.
	Err error

	// Started and Finished bracket the external process, for the summary.
	Started  time.Time
	Finished time.Time

	state State
}

// NewInstance creates an instance in the Pending state.
func NewInstance(desc *Descriptor, input Record) *Instance {
	return &Instance{Desc: desc, Key: input.Key, Input: input, state: Pending}
}

// ID returns a stable identifier, e.g. "align[S1]" or "fetchref".
func (i *Instance) ID() string {
	if i.Key == "" {
		return i.Desc.Name
	}
	return fmt.Sprintf("%s[%s]", i.Desc.Name, i.Key)
}

// State returns the current lifecycle state.
func (i *Instance) State() State { return i.state }

// SetState records a lifecycle transition. Only the scheduler calls this.
func (i *Instance) SetState(s State) { i.state = s }
