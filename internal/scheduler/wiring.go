package scheduler

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/viraflow/internal/ctxlog"
	"github.com/vk/viraflow/internal/dag"
	"github.com/vk/viraflow/internal/stream"
	"github.com/vk/viraflow/internal/task"
)

// wire builds the full channel network for the run: one source channel
// per external source, one output channel per task, and per-task input
// assemblies that join keyed inputs by sample key and broadcast
// run-scoped inputs across every key. Wiring completes before the first
// record is fed, so every subscription is in place when traffic starts.
func (s *Scheduler) wire(ctx context.Context) {
	s.runScoped = make(map[string]bool, len(s.graph.Sources))
	for _, src := range s.graph.Sources {
		s.sources[src.Name] = stream.New[task.Record]("source:" + src.Name)
		s.runScoped[src.Name] = src.RunScoped
	}

	for _, name := range s.graph.TaskNames() {
		node := s.graph.Nodes[name]
		s.states[name] = &taskState{
			node:    node,
			out:     stream.New[task.Record](name + ".out"),
			byKey:   map[string]*task.Instance{},
			skipped: map[string]string{},
		}
	}

	// Assembly must see producer channels, so it runs as a second pass.
	for _, name := range s.graph.TaskNames() {
		s.wireTask(ctx, s.states[name])
	}
}

// edgeChannel derives the per-binding channel: the producer's records
// with the single bound field renamed onto the consumer's input port.
func (s *Scheduler) edgeChannel(node *dag.Node, port string, from dag.Endpoint) *stream.Channel[task.Record] {
	name := node.Desc.Name + "." + port
	if from.Task == "" {
		// Source records already carry fields named for the consuming
		// ports; they pass through unmodified.
		src := s.sources[from.Port]
		return stream.Map(src, name, func(r task.Record) task.Record { return r })
	}
	producer := s.states[from.Task]
	fromPort := from.Port
	return stream.Map(producer.out, name, func(r task.Record) task.Record {
		return task.NewRecord(r.Key).With(port, r.Fields[fromPort])
	})
}

// wireTask folds a task's input channels into one assembly and attaches
// the spawn callbacks.
func (s *Scheduler) wireTask(ctx context.Context, ts *taskState) {
	logger := ctxlog.FromContext(ctx)
	node := ts.node
	name := node.Desc.Name

	// Deterministic port order keeps the fold shape stable run to run.
	ports := make([]string, 0, len(node.Inputs))
	for p := range node.Inputs {
		ports = append(ports, p)
	}
	sort.Strings(ports)

	var keyed, broadcast []*stream.Channel[task.Record]
	for _, p := range ports {
		ch := s.edgeChannel(node, p, node.Inputs[p])
		if s.isBroadcast(node.Inputs[p]) {
			broadcast = append(broadcast, ch)
		} else {
			keyed = append(keyed, ch)
		}
	}

	var in *stream.Channel[task.Record]
	switch {
	case len(keyed) == 0 && len(broadcast) == 0:
		// A task with no inputs never spawns; Build rejects descriptors
		// like that via the unbound-input check, so this is a dead graph
		// node, not a wiring error.
		logger.Warn("Task has no input channels.", "task", name)
		ts.readyClosed = true
		s.maybeCloseOut(ts)
		return
	case len(keyed) > 0:
		in = keyed[0]
		for i, ch := range keyed[1:] {
			joined, stats := stream.Join(in, ch, joinName(name, i),
				recordKey, recordKey, task.Merge)
			ts.joins = append(ts.joins, stats)
			in = joined
		}
		for _, ch := range broadcast {
			in = stream.Combine(in, ch, name+".bcast", task.Merge)
		}
	default:
		// All inputs are run-scoped; fold them pairwise the same way.
		in = broadcast[0]
		for _, ch := range broadcast[1:] {
			in = stream.Combine(in, ch, name+".bcast", task.Merge)
		}
	}

	if node.Desc.Collect {
		batches := stream.Collect(in, name+".collect")
		batches.Each(func(batch []task.Record) { s.spawnCollect(ctx, ts, batch) })
		batches.OnClose(func() {
			ts.readyClosed = true
			s.maybeCloseOut(ts)
		})
		return
	}

	in.Each(func(rec task.Record) { s.spawn(ctx, ts, rec) })
	in.OnClose(func() {
		ts.readyClosed = true
		s.maybeCloseOut(ts)
	})
}

// isBroadcast reports whether the producer behind an endpoint emits
// run-scoped (unkeyed) records. A producer is run-scoped when nothing on
// its own transitive input path is keyed, which in this engine reduces
// to: it is a run-scoped source, or a task whose inputs are all
// broadcast. Sources follow a naming convention set by the pipeline:
// per-sample sources carry keyed records, run-scoped sources one unkeyed
// record.
func (s *Scheduler) isBroadcast(from dag.Endpoint) bool {
	if from.Task == "" {
		return s.runScoped[from.Port]
	}
	node := s.graph.Nodes[from.Task]
	if node.Desc.Collect {
		// A collecting task always emits one run-scoped record.
		return true
	}
	for _, upstream := range node.Inputs {
		if !s.isBroadcast(upstream) {
			return false
		}
	}
	return true
}

// recordKey extracts the join key of a record.
func recordKey(r task.Record) string { return r.Key }

// joinName labels the i-th fold of a task's input assembly.
func joinName(taskName string, i int) string {
	return fmt.Sprintf("%s.join%d", taskName, i)
}
