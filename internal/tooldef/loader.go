package tooldef

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/viraflow/internal/ctxlog"
)

//go:embed profiles/tools.hcl
var embeddedProfile []byte

// Profile is the full set of tool definitions available to a run.
type Profile struct {
	tools map[string]*Tool
}

// Tool returns the named tool definition.
func (p *Profile) Tool(name string) (*Tool, bool) {
	t, ok := p.tools[name]
	return t, ok
}

// Len returns how many tools the profile defines.
func (p *Profile) Len() int { return len(p.tools) }

// Load returns the embedded default profile, overlaid with the tools from
// overrideFile when it is non-empty. Overriding replaces a tool wholesale;
// there is no per-attribute merging.
func Load(ctx context.Context, overrideFile string) (*Profile, error) {
	logger := ctxlog.FromContext(ctx)

	p := &Profile{tools: map[string]*Tool{}}
	if err := p.mergeBytes("profiles/tools.hcl", embeddedProfile); err != nil {
		return nil, fmt.Errorf("embedded tool profile is broken: %w", err)
	}
	logger.Debug("Embedded tool profile loaded.", "tools", len(p.tools))

	if overrideFile != "" {
		src, err := os.ReadFile(overrideFile)
		if err != nil {
			return nil, fmt.Errorf("reading tool profile %s: %w", overrideFile, err)
		}
		if err := p.mergeBytes(overrideFile, src); err != nil {
			return nil, err
		}
		logger.Debug("Tool profile override applied.", "file", overrideFile, "tools", len(p.tools))
	}

	return p, nil
}

// mergeBytes parses one profile file and folds its tools into the set.
func (p *Profile) mergeBytes(filename string, src []byte) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse %s: %w", filename, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return fmt.Errorf("failed to decode %s: %w", filename, diags)
	}

	for _, block := range root.Tools {
		t := &Tool{
			Name:        block.Name,
			Description: block.Description,
			Threads:     block.Threads,
			command:     block.Command,
			outputs:     make(map[string]hcl.Expression, len(block.Outputs)),
		}
		if t.Threads <= 0 {
			t.Threads = 1
		}
		for _, out := range block.Outputs {
			if _, dup := t.outputs[out.Name]; dup {
				return fmt.Errorf("%s: tool %q declares output %q twice", filename, block.Name, out.Name)
			}
			t.outputs[out.Name] = out.Path
		}
		p.tools[t.Name] = t
	}
	return nil
}
