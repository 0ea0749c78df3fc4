package dag

import "fmt"

// CycleError reports a dependency cycle. It indicates a defect in the
// pipeline wiring, not in user data, and aborts the run before any
// external process is launched.
type CycleError struct {
	Node string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected involving task %q", e.Node)
}

// UnboundInputError reports a declared input port with no binding.
type UnboundInputError struct {
	Task string
	Port string
}

func (e *UnboundInputError) Error() string {
	return fmt.Sprintf("input port %q of task %q has no binding", e.Port, e.Task)
}
