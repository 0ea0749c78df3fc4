// Package toolrun executes the external bioinformatics tools. It renders
// a task instance's command template, launches it through the shell with
// the run context (cancellation kills the process group's shell), and
// verifies that every declared output file exists afterwards. Each
// instance gets its own scratch directory under the run's work dir, with
// the tool's combined stdout/stderr captured to a log file there.
package toolrun

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/viraflow/internal/config"
	"github.com/vk/viraflow/internal/ctxlog"
	"github.com/vk/viraflow/internal/task"
	"github.com/vk/viraflow/internal/tooldef"
)

// ToolError is a per-instance external tool failure: non-zero exit, or a
// declared output missing. It is isolated to one sample's branch and
// never aborts the run.
type ToolError struct {
	Instance string
	LogFile  string
	Err      error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %v (tool log: %s)", e.Instance, e.Err, e.LogFile)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Exec runs instances against the real tool profile.
type Exec struct {
	profile *tooldef.Profile
	cfg     *config.Run
	workDir string
}

// NewExec returns a runner that keeps per-instance scratch directories
// under workDir.
func NewExec(profile *tooldef.Profile, cfg *config.Run, workDir string) *Exec {
	return &Exec{profile: profile, cfg: cfg, workDir: workDir}
}

// Run implements scheduler.Runner.
func (e *Exec) Run(ctx context.Context, inst *task.Instance) (task.Record, error) {
	if inst.Key != "" {
		ctx = ctxlog.WithSample(ctx, inst.Key)
	}
	logger := ctxlog.FromContext(ctx).With("tool", inst.Desc.Tool)

	tool, ok := e.profile.Tool(inst.Desc.Tool)
	if !ok {
		return task.Record{}, fmt.Errorf("%s: no tool profile named %q", inst.ID(), inst.Desc.Tool)
	}

	dir := filepath.Join(e.workDir, instanceDir(inst))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return task.Record{}, fmt.Errorf("%s: creating scratch dir: %w", inst.ID(), err)
	}

	in := make(map[string]cty.Value, len(inst.Input.Fields)+1)
	for name, v := range inst.Input.Fields {
		in[name] = v
	}
	if inst.Desc.Collect {
		// Collecting tasks receive the batch as a manifest file: one row
		// per upstream record field.
		manifest := filepath.Join(dir, "manifest.csv")
		if err := writeManifest(manifest, inst.Batch); err != nil {
			return task.Record{}, fmt.Errorf("%s: writing batch manifest: %w", inst.ID(), err)
		}
		in["manifest"] = cty.StringVal(manifest)
	}

	rendered, err := tool.Render(tooldef.RenderInput{
		Sample:  inst.Key,
		Threads: inst.Desc.Threads,
		OutDir:  dir,
		Run:     e.runVars(),
		In:      in,
	})
	if err != nil {
		return task.Record{}, fmt.Errorf("%s: %w", inst.ID(), err)
	}

	logPath := filepath.Join(dir, "tool.log")
	logFile, err := os.Create(logPath)
	if err != nil {
		return task.Record{}, fmt.Errorf("%s: creating tool log: %w", inst.ID(), err)
	}
	defer logFile.Close()

	logger.Debug("Launching external tool.", "command", rendered.Command)
	cmd := exec.CommandContext(ctx, "sh", "-c", rendered.Command)
	cmd.Dir = dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = os.Environ()

	if err := cmd.Run(); err != nil {
		return task.Record{}, &ToolError{Instance: inst.ID(), LogFile: logPath, Err: err}
	}

	out := task.NewRecord(inst.Key)
	for name, path := range rendered.Outputs {
		if _, err := os.Stat(path); err != nil {
			return task.Record{}, &ToolError{
				Instance: inst.ID(),
				LogFile:  logPath,
				Err:      fmt.Errorf("tool exited zero but declared output %q is missing at %s", name, path),
			}
		}
		out.Fields[name] = cty.StringVal(path)
	}
	return out, nil
}

// runVars exposes the run-wide constants to command templates.
func (e *Exec) runVars() map[string]cty.Value {
	return map[string]cty.Value{
		"name":          cty.StringVal(e.cfg.RunName),
		"refname":       cty.StringVal(e.cfg.RefName),
		"classifier_db": cty.StringVal(e.cfg.ClassifierDB),
		"keep_taxids":   cty.StringVal(e.cfg.KeepTaxIDs),
		"reference":     cty.StringVal(e.cfg.Reference),
		"outfolder":     cty.StringVal(e.cfg.OutFolder),
	}
}

// instanceDir maps an instance ID onto a filesystem-safe directory name,
// e.g. "align[S1]" -> "align.S1".
func instanceDir(inst *task.Instance) string {
	return strings.NewReplacer("[", ".", "]", "").Replace(inst.ID())
}

// writeManifest serializes a batch to CSV: sample, field, path.
func writeManifest(path string, batch []task.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"sample", "field", "path"}); err != nil {
		return err
	}
	for _, rec := range batch {
		fields := make([]string, 0, len(rec.Fields))
		for name := range rec.Fields {
			fields = append(fields, name)
		}
		sort.Strings(fields)
		for _, name := range fields {
			if err := w.Write([]string{rec.Key, name, rec.Path(name)}); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}
