package dag

import (
	"fmt"
	"sort"

	"github.com/vk/viraflow/internal/task"
)

// Endpoint addresses one end of a binding. Task == "" addresses an
// external source channel named Port; otherwise it addresses the named
// port of the named task.
type Endpoint struct {
	Task string
	Port string
}

// FromTask addresses an output port of an upstream task.
func FromTask(taskName, port string) Endpoint {
	return Endpoint{Task: taskName, Port: port}
}

// FromSource addresses an external source channel.
func FromSource(name string) Endpoint {
	return Endpoint{Port: name}
}

// String renders the endpoint for diagnostics, e.g. "align.reads" or
// "source:sample_reads".
func (e Endpoint) String() string {
	if e.Task == "" {
		return "source:" + e.Port
	}
	return e.Task + "." + e.Port
}

// Binding wires the input port To to the producer From.
type Binding struct {
	To   Endpoint
	From Endpoint
}

// Node is one task in the graph together with its resolved wiring.
type Node struct {
	Desc *task.Descriptor

	// Inputs maps each declared input port to its bound producer.
	Inputs map[string]Endpoint

	// Deps and Dependents index neighbouring nodes by task name.
	Deps       map[string]*Node
	Dependents map[string]*Node
}

// Source declares one external channel the graph consumes. Per-sample
// sources carry keyed records; run-scoped sources carry at most one
// unkeyed record that fans out to every sample.
type Source struct {
	Name      string
	RunScoped bool
}

// Graph is a validated, acyclic set of task nodes. It is immutable after
// Build returns.
type Graph struct {
	Nodes map[string]*Node

	// Sources lists the external source channels the graph consumes,
	// sorted by name.
	Sources []Source
}

// Node returns the node for the given task name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.Nodes[name]
	return n, ok
}

// TaskNames returns every task name in lexicographic order.
func (g *Graph) TaskNames() []string {
	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Edges returns the edge set as a sorted adjacency list keyed by the
// upstream task. It is the canonical structural representation used to
// check that graph construction is pure.
func (g *Graph) Edges() map[string][]string {
	edges := make(map[string][]string, len(g.Nodes))
	for name, n := range g.Nodes {
		for dep := range n.Dependents {
			edges[name] = append(edges[name], dep)
		}
		sort.Strings(edges[name])
	}
	return edges
}

// Roots returns the tasks with no upstream task, in lexicographic order.
// These consume external sources only and unlock the run.
func (g *Graph) Roots() []*Node {
	var roots []*Node
	for _, name := range g.TaskNames() {
		if len(g.Nodes[name].Deps) == 0 {
			roots = append(roots, g.Nodes[name])
		}
	}
	return roots
}

// detectCycles checks for circular dependencies using depth-first search.
func (g *Graph) detectCycles() error {
	visiting := make(map[string]bool)
	visited := make(map[string]bool)

	var visit func(n *Node) error
	visit = func(n *Node) error {
		visiting[n.Desc.Name] = true
		for _, dep := range n.Deps {
			if visiting[dep.Desc.Name] {
				return &CycleError{Node: dep.Desc.Name}
			}
			if !visited[dep.Desc.Name] {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		delete(visiting, n.Desc.Name)
		visited[n.Desc.Name] = true
		return nil
	}

	// Iterate in sorted order so the reported cycle node is stable.
	for _, name := range g.TaskNames() {
		if !visited[name] {
			if err := visit(g.Nodes[name]); err != nil {
				return err
			}
		}
	}
	return nil
}

// addEdge records that `to` depends on `from`. Duplicate edges collapse.
func addEdge(from, to *Node) error {
	if from == to {
		return fmt.Errorf("self-referential binding on task %q", from.Desc.Name)
	}
	to.Deps[from.Desc.Name] = from
	from.Dependents[to.Desc.Name] = to
	return nil
}
