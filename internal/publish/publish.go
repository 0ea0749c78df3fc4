// Package publish moves a finished run's artifacts out of the scratch
// tree into the run's output folder and writes the report bundle beside
// them: run.yaml (the configuration a reader needs to reproduce the
// run), instances.csv (one line per instance), summary.json and a small
// index.html.
package publish

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/vk/viraflow/internal/config"
	"github.com/vk/viraflow/internal/ctxlog"
	"github.com/vk/viraflow/internal/scheduler"
	"github.com/vk/viraflow/internal/task"
)

// copyConcurrency bounds parallel artifact copies so a run with many
// samples does not exhaust file descriptors.
const copyConcurrency = 4

// Publish writes the full output bundle for one run. Artifacts of failed
// or skipped instances are simply absent; the bundle always gets written,
// even for a run where every sample failed, because the report is how the
// operator finds out what happened.
func Publish(ctx context.Context, cfg *config.Run, sum *scheduler.Summary, instances []*task.Instance) error {
	log := ctxlog.FromContext(ctx)

	dataDir := filepath.Join(cfg.OutFolder, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating output folder: %w", err)
	}

	if err := copyArtifacts(ctx, dataDir, instances); err != nil {
		return err
	}
	if err := writeRunMeta(cfg, sum, filepath.Join(cfg.OutFolder, "run.yaml")); err != nil {
		return err
	}
	if err := writeInstanceTable(sum, filepath.Join(cfg.OutFolder, "instances.csv")); err != nil {
		return err
	}
	if err := writeSummaryJSON(sum, filepath.Join(cfg.OutFolder, "summary.json")); err != nil {
		return err
	}
	if err := writeIndex(cfg, sum, filepath.Join(cfg.OutFolder, "index.html")); err != nil {
		return err
	}

	log.Info("Run published.", "folder", cfg.OutFolder)
	return nil
}

// copyArtifacts copies every file output of every succeeded instance
// into data/<task>/<key>/. Copies run concurrently; the first failure
// cancels the rest.
func copyArtifacts(ctx context.Context, dataDir string, instances []*task.Instance) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(copyConcurrency)

	for _, inst := range instances {
		if inst.State() != task.Succeeded {
			continue
		}
		destDir := filepath.Join(dataDir, inst.Desc.Name)
		if inst.Key != "" {
			destDir = filepath.Join(destDir, inst.Key)
		}
		for _, port := range inst.Desc.Outputs {
			if port.Kind == task.Scalar {
				continue
			}
			src := inst.Output.Path(port.Name)
			if src == "" {
				continue
			}
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				return copyFile(src, filepath.Join(destDir, filepath.Base(src)))
			})
		}
	}
	return g.Wait()
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("publishing %s: %w", filepath.Base(src), err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("publishing %s: %w", filepath.Base(src), err)
	}
	return out.Close()
}

// runMeta is the reproducibility header of the bundle.
type runMeta struct {
	Name        string        `yaml:"name"`
	Mode        string        `yaml:"mode"`
	ReadsFolder string        `yaml:"reads_folder"`
	Threads     int           `yaml:"threads"`
	Reference   string        `yaml:"reference"`
	RefName     string        `yaml:"reference_name"`
	Classifier  string        `yaml:"classifier_db,omitempty"`
	KeepTaxIDs  string        `yaml:"keep_taxids,omitempty"`
	Dev         bool          `yaml:"dev,omitempty"`
	DevInputs   int           `yaml:"dev_inputs,omitempty"`
	Finished    time.Time     `yaml:"finished"`
	Duration    time.Duration `yaml:"duration"`
	Succeeded   bool          `yaml:"succeeded"`
}

func writeRunMeta(cfg *config.Run, sum *scheduler.Summary, path string) error {
	meta := runMeta{
		Name:        cfg.RunName,
		Mode:        string(cfg.Mode),
		ReadsFolder: cfg.ReadsFolder,
		Threads:     cfg.Threads,
		Reference:   cfg.Reference,
		RefName:     cfg.RefName,
		Classifier:  cfg.ClassifierDB,
		KeepTaxIDs:  cfg.KeepTaxIDs,
		Dev:         cfg.Dev,
		DevInputs:   cfg.DevInputs,
		Finished:    time.Now().UTC(),
		Duration:    sum.Duration,
		Succeeded:   !sum.Failed(),
	}
	data, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding run metadata: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func writeInstanceTable(sum *scheduler.Summary, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"task", "sample", "state", "duration", "reason", "error"}); err != nil {
		f.Close()
		return err
	}
	for _, r := range sum.AllRows() {
		row := []string{r.Task, r.Key, r.State.String(), r.Duration.String(), r.Reason, r.Err}
		if err := w.Write(row); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// summaryJSON mirrors Summary in a stable wire shape.
type summaryJSON struct {
	DurationSeconds float64           `json:"duration_seconds"`
	Succeeded       bool              `json:"succeeded"`
	Totals          map[string]int    `json:"totals"`
	Tasks           []taskSummaryJSON `json:"tasks"`
}

type taskSummaryJSON struct {
	Name      string `json:"name"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Cancelled int    `json:"cancelled"`
}

func writeSummaryJSON(sum *scheduler.Summary, path string) error {
	out := summaryJSON{
		DurationSeconds: sum.Duration.Seconds(),
		Succeeded:       !sum.Failed(),
		Totals:          map[string]int{},
	}
	for state, n := range sum.Totals {
		out.Totals[state.String()] = n
	}
	for _, t := range sum.Tasks {
		out.Tasks = append(out.Tasks, taskSummaryJSON{
			Name:      t.Name,
			Succeeded: t.Counts.Succeeded,
			Failed:    t.Counts.Failed,
			Skipped:   t.Counts.Skipped,
			Cancelled: t.Counts.Cancelled,
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
