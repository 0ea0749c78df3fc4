package scheduler

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/vk/viraflow/internal/task"
)

// Row is one line of the run summary: a real instance, or the record of
// an instance that was deliberately never created.
type Row struct {
	Task     string
	Key      string
	State    task.State
	Reason   string
	Duration time.Duration
	Err      string
}

// Counts aggregates terminal states for one task type.
type Counts struct {
	Succeeded int
	Failed    int
	Skipped   int
	Cancelled int
}

// TaskSummary is the per-task-type slice of the summary.
type TaskSummary struct {
	Name   string
	Counts Counts
	Rows   []Row
}

// Summary is the final report of one run.
type Summary struct {
	Duration time.Duration
	Tasks    []TaskSummary
	Totals   map[task.State]int
}

// Failed reports whether any instance failed, which makes the whole run
// exit non-zero.
func (s *Summary) Failed() bool {
	return s.Totals[task.Failed] > 0
}

// AllRows returns every row of the summary flattened, for publication.
func (s *Summary) AllRows() []Row {
	var rows []Row
	for _, t := range s.Tasks {
		rows = append(rows, t.Rows...)
	}
	return rows
}

// Render writes the human-readable run summary.
func (s *Summary) Render(w io.Writer) {
	fmt.Fprintf(w, "run finished in %s\n", s.Duration.Round(time.Second))
	fmt.Fprintf(w, "%-12s %10s %10s %10s %10s\n", "task", "succeeded", "failed", "skipped", "cancelled")
	for _, t := range s.Tasks {
		fmt.Fprintf(w, "%-12s %10d %10d %10d %10d\n",
			t.Name, t.Counts.Succeeded, t.Counts.Failed, t.Counts.Skipped, t.Counts.Cancelled)
	}
	for _, t := range s.Tasks {
		for _, r := range t.Rows {
			switch r.State {
			case task.Failed:
				fmt.Fprintf(w, "  FAILED  %-24s %s\n", rowID(r), r.Err)
			case task.Skipped:
				fmt.Fprintf(w, "  skipped %-24s %s\n", rowID(r), r.Reason)
			case task.Cancelled:
				fmt.Fprintf(w, "  cancelled %-22s\n", rowID(r))
			}
		}
	}
}

func rowID(r Row) string {
	if r.Key == "" {
		return r.Task
	}
	return fmt.Sprintf("%s[%s]", r.Task, r.Key)
}

// summarize folds the scheduler's terminal state into a Summary. Join
// misses that no instance and no explicit skip accounts for are reported
// as skipped rows with a "join miss" reason, so a silently dropped key is
// always distinguishable from a true failure.
func (s *Scheduler) summarize(elapsed time.Duration) *Summary {
	summary := &Summary{
		Duration: elapsed,
		Totals:   map[task.State]int{},
	}

	for _, name := range s.sortedTaskNames() {
		ts := s.states[name]
		t := TaskSummary{Name: name}

		for _, inst := range ts.instances {
			row := Row{
				Task:  name,
				Key:   inst.Key,
				State: inst.State(),
			}
			if !inst.Started.IsZero() && !inst.Finished.IsZero() {
				row.Duration = inst.Finished.Sub(inst.Started)
			}
			if inst.Err != nil {
				row.Err = inst.Err.Error()
			}
			t.Rows = append(t.Rows, row)
		}

		skippedKeys := make([]string, 0, len(ts.skipped))
		for key := range ts.skipped {
			skippedKeys = append(skippedKeys, key)
		}
		sort.Strings(skippedKeys)
		for _, key := range skippedKeys {
			t.Rows = append(t.Rows, Row{
				Task: name, Key: key, State: task.Skipped, Reason: ts.skipped[key],
			})
		}

		misses := map[string]bool{}
		for _, js := range ts.joins {
			for _, key := range js.Misses() {
				misses[key] = true
			}
		}
		missKeys := make([]string, 0, len(misses))
		for key := range misses {
			if _, has := ts.byKey[key]; has {
				continue
			}
			if _, has := ts.skipped[key]; has {
				continue
			}
			missKeys = append(missKeys, key)
		}
		sort.Strings(missKeys)
		for _, key := range missKeys {
			t.Rows = append(t.Rows, Row{
				Task: name, Key: key, State: task.Skipped, Reason: "join miss",
			})
		}

		for _, row := range t.Rows {
			summary.Totals[row.State]++
			switch row.State {
			case task.Succeeded:
				t.Counts.Succeeded++
			case task.Failed:
				t.Counts.Failed++
			case task.Skipped:
				t.Counts.Skipped++
			case task.Cancelled:
				t.Counts.Cancelled++
			}
		}

		summary.Tasks = append(summary.Tasks, t)
	}

	return summary
}
