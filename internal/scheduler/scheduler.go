package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/vk/viraflow/internal/ctxlog"
	"github.com/vk/viraflow/internal/dag"
	"github.com/vk/viraflow/internal/stream"
	"github.com/vk/viraflow/internal/task"
)

// Runner executes one task instance's external tool and returns its
// output record. Implementations must honour context cancellation by
// terminating the underlying process.
type Runner interface {
	Run(ctx context.Context, inst *task.Instance) (task.Record, error)
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context, inst *task.Instance) (task.Record, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, inst *task.Instance) (task.Record, error) {
	return f(ctx, inst)
}

// completion is one worker's report back to the event loop.
type completion struct {
	state *taskState
	inst  *task.Instance
	out   task.Record
	err   error
}

// taskState is the scheduler's per-task bookkeeping.
type taskState struct {
	node *dag.Node

	// out carries this task's output records to downstream consumers.
	out *stream.Channel[task.Record]

	// readyClosed is set once no further instance of this task can be
	// created (all input channels exhausted).
	readyClosed bool

	// live counts created-but-not-terminal instances.
	live int

	// instances is the full history, in creation order.
	instances []*task.Instance

	// byKey guards exactly-once instantiation per input key.
	byKey map[string]*task.Instance

	// skipped records keys for which no instance was created, by reason.
	skipped map[string]string

	// joins collects the inner-join statistics of this task's input
	// assembly, read at run end for the summary.
	joins []*stream.JoinStats
}

// Scheduler owns a single run of one graph.
type Scheduler struct {
	graph  *dag.Graph
	budget int
	runner Runner

	states    map[string]*taskState
	sources   map[string]*stream.Channel[task.Record]
	runScoped map[string]bool

	events    chan completion
	readyQ    []queued
	free      int
	running   int
	cancelled bool
}

// queued is one admitted-pending instance in FIFO arrival order.
type queued struct {
	state   *taskState
	inst    *task.Instance
	threads int
}

// New prepares a scheduler for one run of the graph under the given
// thread budget.
func New(graph *dag.Graph, budget int, runner Runner) *Scheduler {
	return &Scheduler{
		graph:  graph,
		budget: budget,
		runner: runner,
		free:   budget,
	}
}

// Run wires the channels, feeds the external sources, and drives the
// graph until every spawned instance is terminal and every channel has
// signalled end-of-stream. The returned summary is complete even when the
// context was cancelled mid-run; the error is then ctx.Err().
func (s *Scheduler) Run(ctx context.Context, sources map[string][]task.Record) (*Summary, error) {
	logger := ctxlog.FromContext(ctx)
	start := time.Now()

	// At most one outstanding completion per admitted instance, and
	// admissions never exceed the budget in one-thread units.
	s.events = make(chan completion, s.budget+1)
	s.states = make(map[string]*taskState, len(s.graph.Nodes))
	s.sources = make(map[string]*stream.Channel[task.Record], len(s.graph.Sources))

	s.wire(ctx)
	logger.Debug("Scheduler wired.", "tasks", len(s.states), "sources", len(s.sources))

	// Feed every external source in deterministic order. Spawn callbacks
	// fire synchronously as joins complete.
	for _, src := range s.graph.Sources {
		recs := sources[src.Name]
		logger.Debug("Feeding source channel.", "source", src.Name, "records", len(recs))
		s.sources[src.Name].Feed(recs)
	}

	s.dispatch(ctx)

	for s.running > 0 || len(s.readyQ) > 0 {
		if s.cancelled {
			// Only in-flight completions remain; drain them.
			s.handle(ctx, <-s.events)
			continue
		}
		select {
		case ev := <-s.events:
			s.handle(ctx, ev)
			s.dispatch(ctx)
		case <-ctx.Done():
			logger.Warn("Run cancelled; no further instances will be dispatched.")
			s.cancel()
		}
	}

	summary := s.summarize(time.Since(start))
	logger.Info("Run complete.",
		"succeeded", summary.Totals[task.Succeeded],
		"failed", summary.Totals[task.Failed],
		"skipped", summary.Totals[task.Skipped],
		"cancelled", summary.Totals[task.Cancelled],
	)
	if s.cancelled {
		return summary, ctx.Err()
	}
	return summary, nil
}

// spawn creates an instance for one complete input record, exactly once
// per key.
func (s *Scheduler) spawn(ctx context.Context, ts *taskState, rec task.Record) {
	logger := ctxlog.FromContext(ctx)
	name := ts.node.Desc.Name

	if _, dup := ts.byKey[rec.Key]; dup {
		logger.Warn("Duplicate input combination ignored.", "task", name, "key", rec.Key)
		return
	}
	if _, wasSkipped := ts.skipped[rec.Key]; wasSkipped {
		return
	}
	if s.cancelled {
		ts.skipped[rec.Key] = "run cancelled"
		return
	}
	if ts.node.Desc.SkipWhen != nil && ts.node.Desc.SkipWhen(rec) {
		logger.Debug("Skip predicate suppressed instance.", "task", name, "key", rec.Key)
		ts.skipped[rec.Key] = "skip predicate"
		return
	}

	inst := task.NewInstance(ts.node.Desc, rec)
	ts.byKey[rec.Key] = inst
	ts.instances = append(ts.instances, inst)
	ts.live++

	inst.SetState(task.Ready)
	threads := ts.node.Desc.Threads
	if threads <= 0 {
		threads = 1
	}
	if threads > s.budget {
		// A request larger than the whole budget would never be
		// admitted; clamp it instead of deadlocking.
		logger.Warn("Thread request exceeds budget, clamping.", "task", name, "requested", threads, "budget", s.budget)
		threads = s.budget
	}
	logger.Debug("Instance ready.", "instance", inst.ID(), "threads", threads)
	s.readyQ = append(s.readyQ, queued{state: ts, inst: inst, threads: threads})
}

// spawnCollect creates the single instance of a collecting task from the
// buffered batch, after its upstream has been exhausted.
func (s *Scheduler) spawnCollect(ctx context.Context, ts *taskState, batch []task.Record) {
	logger := ctxlog.FromContext(ctx)
	name := ts.node.Desc.Name

	rec := task.NewRecord("")
	if ts.node.Desc.Reduce != nil {
		var err error
		rec, err = ts.node.Desc.Reduce(batch)
		if err != nil {
			logger.Error("Batch reduction failed.", "task", name, "error", err)
			ts.skipped[""] = "batch reduction failed: " + err.Error()
			return
		}
	}
	inst := task.NewInstance(ts.node.Desc, rec)
	inst.Batch = batch
	ts.byKey[rec.Key] = inst
	ts.instances = append(ts.instances, inst)
	ts.live++

	inst.SetState(task.Ready)
	threads := ts.node.Desc.Threads
	if threads <= 0 {
		threads = 1
	}
	if threads > s.budget {
		threads = s.budget
	}
	logger.Debug("Collect instance ready.", "instance", inst.ID(), "batch_size", len(batch))
	s.readyQ = append(s.readyQ, queued{state: ts, inst: inst, threads: threads})
}

// dispatch admits ready instances in strict FIFO order while the head of
// the queue fits the remaining thread budget. The head blocks later
// arrivals even when they would fit, which keeps admission fair and the
// budget accounting trivial to reason about.
func (s *Scheduler) dispatch(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	for len(s.readyQ) > 0 && !s.cancelled {
		head := s.readyQ[0]
		if head.threads > s.free {
			return
		}
		s.readyQ = s.readyQ[1:]
		s.free -= head.threads
		s.running++
		head.inst.SetState(task.Running)
		head.inst.Started = time.Now()
		logger.Debug("Dispatching instance.", "instance", head.inst.ID(), "threads", head.threads, "free", s.free)

		go func(q queued) {
			out, err := s.runner.Run(ctx, q.inst)
			s.events <- completion{state: q.state, inst: q.inst, out: out, err: err}
		}(head)
	}
}

// handle processes one worker completion inside the event loop.
func (s *Scheduler) handle(ctx context.Context, ev completion) {
	logger := ctxlog.FromContext(ctx)

	s.running--
	threads := ev.inst.Desc.Threads
	if threads <= 0 {
		threads = 1
	}
	if threads > s.budget {
		threads = s.budget
	}
	s.free += threads

	ev.inst.Finished = time.Now()
	ts := ev.state
	ts.live--

	switch {
	case ev.err != nil && s.cancelled:
		ev.inst.SetState(task.Cancelled)
		ev.inst.Err = ev.err
		logger.Debug("Instance cancelled.", "instance", ev.inst.ID())
	case ev.err != nil:
		ev.inst.SetState(task.Failed)
		ev.inst.Err = ev.err
		logger.Error("Instance failed.", "instance", ev.inst.ID(), "error", ev.err)
		s.propagateSkip(ts.node, ev.inst.Key)
	default:
		ev.inst.SetState(task.Succeeded)
		out := ev.out
		out.Key = ev.inst.Key
		ev.inst.Output = out
		logger.Info("Instance succeeded.", "instance", ev.inst.ID(), "duration", ev.inst.Finished.Sub(ev.inst.Started).Round(time.Millisecond))
		if !ts.out.Closed() {
			ts.out.Publish(out)
		}
	}

	s.maybeCloseOut(ts)
}

// propagateSkip records every keyed transitive dependent of a failed
// instance as skipped. Collecting tasks are not poisoned: they aggregate
// whatever did succeed (partial-batch tolerance).
func (s *Scheduler) propagateSkip(node *dag.Node, key string) {
	for name := range node.Dependents {
		ts := s.states[name]
		if ts.node.Desc.Collect {
			continue
		}
		if _, exists := ts.byKey[key]; exists {
			continue
		}
		if _, done := ts.skipped[key]; done {
			continue
		}
		ts.skipped[key] = "upstream failure of " + node.Desc.Name
		s.propagateSkip(ts.node, key)
	}
}

// maybeCloseOut closes a task's output channel once no further record can
// appear on it: inputs exhausted and every spawned instance terminal.
// Closing cascades: downstream joins close, collect barriers fire.
func (s *Scheduler) maybeCloseOut(ts *taskState) {
	if ts.readyClosed && ts.live == 0 && !ts.out.Closed() {
		ts.out.Close()
	}
}

// cancel stops all future dispatch and marks queued instances Cancelled.
// Already-running external processes are killed through the run context
// (the exec runner launches them with CommandContext); their completions
// drain through the event queue as usual.
func (s *Scheduler) cancel() {
	s.cancelled = true
	for _, q := range s.readyQ {
		q.inst.SetState(task.Cancelled)
		q.state.live--
		s.maybeCloseOut(q.state)
	}
	s.readyQ = nil
}

// Instances returns every instance created during the run, grouped by
// task in stable name order. Publication walks this to find the output
// artifacts of succeeded instances.
func (s *Scheduler) Instances() []*task.Instance {
	var out []*task.Instance
	for _, name := range s.sortedTaskNames() {
		out = append(out, s.states[name].instances...)
	}
	return out
}

// sortedTaskNames returns the task names of the run in stable order.
func (s *Scheduler) sortedTaskNames() []string {
	names := make([]string, 0, len(s.states))
	for n := range s.states {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
