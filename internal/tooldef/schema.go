// Package tooldef loads the external tool profiles: HCL files declaring,
// for every collaborator the pipeline invokes, its command template,
// thread requirement and declared output files. The engine treats each
// tool as a black box; this package is everything it knows about one.
package tooldef

import (
	"github.com/hashicorp/hcl/v2"
)

// fileRoot decodes the top-level blocks of one profile file.
type fileRoot struct {
	Tools  []*toolBlock `hcl:"tool,block"`
	Remain hcl.Body     `hcl:",remain"`
}

// toolBlock is the raw HCL shape of one `tool "name" { ... }` block.
// Command and output paths stay as expressions so interpolation happens
// per task instance, not at load time.
type toolBlock struct {
	Name        string         `hcl:"name,label"`
	Description string         `hcl:"description,optional"`
	Threads     int            `hcl:"threads,optional"`
	Command     hcl.Expression `hcl:"command"`
	Outputs     []*outputBlock `hcl:"output,block"`
}

// outputBlock declares one output file the tool must produce.
type outputBlock struct {
	Name string         `hcl:"name,label"`
	Path hcl.Expression `hcl:"path"`
}

// Tool is the translated, load-time-validated form of a tool block.
type Tool struct {
	Name        string
	Description string

	// Threads is the default thread requirement; task descriptors may
	// not exceed the run budget with it, the scheduler clamps.
	Threads int

	command hcl.Expression
	outputs map[string]hcl.Expression
}

// OutputNames returns the declared output names in unspecified order.
func (t *Tool) OutputNames() []string {
	names := make([]string, 0, len(t.outputs))
	for n := range t.outputs {
		names = append(names, n)
	}
	return names
}
