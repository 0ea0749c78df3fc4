package publish

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/vk/viraflow/internal/config"
	"github.com/vk/viraflow/internal/scheduler"
	"github.com/vk/viraflow/internal/task"
)

func succeededInstance(t *testing.T, scratch, taskName, key string, outputs map[string]string) *task.Instance {
	t.Helper()
	desc := &task.Descriptor{Name: taskName, Threads: 1}
	rec := task.NewRecord(key)
	for name, content := range outputs {
		desc.Outputs = append(desc.Outputs, task.Port{Name: name, Kind: task.File})
		fname := name
		if key != "" {
			fname = key + "." + name
		}
		p := filepath.Join(scratch, fname)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		rec = rec.WithPath(name, p)
	}
	inst := task.NewInstance(desc, task.NewRecord(key))
	inst.Output = rec
	inst.SetState(task.Succeeded)
	return inst
}

func fixtureSummary() *scheduler.Summary {
	return &scheduler.Summary{
		Duration: 90 * time.Second,
		Totals:   map[task.State]int{task.Succeeded: 3, task.Failed: 1},
		Tasks: []scheduler.TaskSummary{
			{
				Name:   "align",
				Counts: scheduler.Counts{Succeeded: 1, Failed: 1},
				Rows: []scheduler.Row{
					{Task: "align", Key: "S1", State: task.Succeeded, Duration: 40 * time.Second},
					{Task: "align", Key: "S2", State: task.Failed, Err: "tool exited 1"},
				},
			},
			{
				Name:   "trim",
				Counts: scheduler.Counts{Succeeded: 2},
				Rows: []scheduler.Row{
					{Task: "trim", Key: "S1", State: task.Succeeded},
					{Task: "trim", Key: "S2", State: task.Succeeded},
				},
			},
		},
	}
}

func TestPublish(t *testing.T) {
	scratch := t.TempDir()
	out := filepath.Join(t.TempDir(), "batch42_out")
	cfg := &config.Run{
		Mode: config.ModePE, RunName: "batch42", OutFolder: out,
		Reference: "NC_045512.2", RefName: "sars2", Threads: 8,
	}

	instances := []*task.Instance{
		succeededInstance(t, scratch, "align", "S1", map[string]string{"bam": "bam-bytes"}),
		succeededInstance(t, scratch, "fetchref", "", map[string]string{"fasta": ">ref"}),
	}
	failed := task.NewInstance(&task.Descriptor{Name: "align"}, task.NewRecord("S2"))
	failed.SetState(task.Failed)
	instances = append(instances, failed)

	sum := fixtureSummary()
	require.NoError(t, Publish(context.Background(), cfg, sum, instances))

	t.Run("artifacts are copied per task and key", func(t *testing.T) {
		got, err := os.ReadFile(filepath.Join(out, "data", "align", "S1", "S1.bam"))
		require.NoError(t, err)
		assert.Equal(t, "bam-bytes", string(got))

		// Run-scoped instances publish directly under the task folder.
		_, err = os.Stat(filepath.Join(out, "data", "fetchref", "fasta"))
		require.NoError(t, err)
	})

	t.Run("run.yaml round-trips the configuration", func(t *testing.T) {
		raw, err := os.ReadFile(filepath.Join(out, "run.yaml"))
		require.NoError(t, err)

		var meta map[string]any
		require.NoError(t, yaml.Unmarshal(raw, &meta))
		assert.Equal(t, "batch42", meta["name"])
		assert.Equal(t, "pe", meta["mode"])
		assert.Equal(t, "NC_045512.2", meta["reference"])
		assert.Equal(t, false, meta["succeeded"])
	})

	t.Run("instances.csv has one row per summary row", func(t *testing.T) {
		raw, err := os.ReadFile(filepath.Join(out, "instances.csv"))
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
		assert.Len(t, lines, 5, "header plus four rows")
		assert.Equal(t, "task,sample,state,duration,reason,error", lines[0])
		assert.Contains(t, lines[2], "align,S2,failed")
	})

	t.Run("summary.json", func(t *testing.T) {
		raw, err := os.ReadFile(filepath.Join(out, "summary.json"))
		require.NoError(t, err)

		var s summaryJSON
		require.NoError(t, json.Unmarshal(raw, &s))
		assert.False(t, s.Succeeded)
		assert.Equal(t, 90.0, s.DurationSeconds)
		assert.Equal(t, 3, s.Totals["succeeded"])
		require.Len(t, s.Tasks, 2)
		assert.Equal(t, "align", s.Tasks[0].Name)
		assert.Equal(t, 1, s.Tasks[0].Failed)
	})

	t.Run("index.html", func(t *testing.T) {
		raw, err := os.ReadFile(filepath.Join(out, "index.html"))
		require.NoError(t, err)
		html := string(raw)
		assert.Contains(t, html, "<h1>batch42</h1>")
		assert.Contains(t, html, "<b>failed</b>")
		assert.Contains(t, html, "<td>align</td>")
	})
}

func TestPublishSkipsNonTerminalAndFailed(t *testing.T) {
	out := filepath.Join(t.TempDir(), "o")
	cfg := &config.Run{Mode: config.ModeONT, RunName: "r", OutFolder: out, Reference: "X"}

	failed := task.NewInstance(&task.Descriptor{
		Name:    "align",
		Outputs: []task.Port{{Name: "bam", Kind: task.File}},
	}, task.NewRecord("S1"))
	failed.SetState(task.Failed)

	sum := &scheduler.Summary{Totals: map[task.State]int{task.Failed: 1}}
	require.NoError(t, Publish(context.Background(), cfg, sum, []*task.Instance{failed}))

	entries, err := os.ReadDir(filepath.Join(out, "data"))
	require.NoError(t, err)
	assert.Empty(t, entries, "failed instances publish nothing")
}

func TestPublishMissingArtifactFails(t *testing.T) {
	out := filepath.Join(t.TempDir(), "o")
	cfg := &config.Run{Mode: config.ModeONT, RunName: "r", OutFolder: out, Reference: "X"}

	inst := task.NewInstance(&task.Descriptor{
		Name:    "align",
		Outputs: []task.Port{{Name: "bam", Kind: task.File}},
	}, task.NewRecord("S1"))
	inst.Output = task.NewRecord("S1").WithPath("bam", "/does/not/exist.bam")
	inst.SetState(task.Succeeded)

	sum := &scheduler.Summary{Totals: map[task.State]int{}}
	err := Publish(context.Background(), cfg, sum, []*task.Instance{inst})
	assert.ErrorContains(t, err, "publishing exist.bam")
}
