package tooldef

import (
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// RenderInput carries everything a command template may interpolate.
type RenderInput struct {
	// Sample is the sample key, or "" for run-scoped tasks.
	Sample string

	// Threads is the thread count the tool is granted.
	Threads int

	// OutDir is the instance's scratch directory. Relative declared
	// output paths are resolved against it.
	OutDir string

	// Run holds run-wide constants (run name, reference name, database
	// paths, ...), exposed to templates as `run.<field>`.
	Run map[string]cty.Value

	// In holds the bound input port values, exposed as `in.<port>`.
	In map[string]cty.Value
}

// Rendered is one fully-interpolated invocation.
type Rendered struct {
	// Command is the shell command line to execute.
	Command string

	// Outputs maps each declared output name to the absolute path the
	// tool must produce it at. The engine checks existence after exit.
	Outputs map[string]string
}

// Render interpolates the tool's output paths and command template for one
// instance. Output paths are rendered first so the command template can
// refer to them as `out.<name>`.
func (t *Tool) Render(in RenderInput) (*Rendered, error) {
	vars := map[string]cty.Value{
		"sample":  cty.StringVal(in.Sample),
		"threads": cty.NumberIntVal(int64(in.Threads)),
		"outdir":  cty.StringVal(in.OutDir),
	}
	if len(in.Run) > 0 {
		vars["run"] = cty.ObjectVal(in.Run)
	}
	if len(in.In) > 0 {
		vars["in"] = cty.ObjectVal(in.In)
	}
	evalCtx := &hcl.EvalContext{Variables: vars}

	outputs := make(map[string]string, len(t.outputs))
	outVals := make(map[string]cty.Value, len(t.outputs))
	for name, expr := range t.outputs {
		path, err := evalString(expr, evalCtx)
		if err != nil {
			return nil, fmt.Errorf("tool %q: rendering output %q: %w", t.Name, name, err)
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(in.OutDir, path)
		}
		outputs[name] = path
		outVals[name] = cty.StringVal(path)
	}
	if len(outVals) > 0 {
		evalCtx.Variables["out"] = cty.ObjectVal(outVals)
	}

	command, err := evalString(t.command, evalCtx)
	if err != nil {
		return nil, fmt.Errorf("tool %q: rendering command: %w", t.Name, err)
	}

	return &Rendered{Command: command, Outputs: outputs}, nil
}

// evalString evaluates an expression that must yield a known string.
func evalString(expr hcl.Expression, evalCtx *hcl.EvalContext) (string, error) {
	v, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return "", diags
	}
	if !v.IsKnown() || v.IsNull() || v.Type() != cty.String {
		return "", fmt.Errorf("expression did not produce a string")
	}
	return v.AsString(), nil
}
