package dag

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/viraflow/internal/ctxlog"
	"github.com/vk/viraflow/internal/task"
)

// Build constructs a validated dependency graph from task descriptors and
// port bindings. sources names the external channels the caller will feed
// once the run starts.
//
// Build is pure: the same descriptors, bindings and sources always yield
// a structurally identical graph. It fails with *UnboundInputError if any
// declared input port lacks a binding, and with *CycleError if the
// induced graph is not acyclic.
func Build(ctx context.Context, descs []*task.Descriptor, binds []Binding, sources []Source) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: starting graph construction.", "tasks", len(descs), "bindings", len(binds))

	graph := &Graph{Nodes: make(map[string]*Node, len(descs))}
	graph.Sources = append(graph.Sources, sources...)
	sort.Slice(graph.Sources, func(i, j int) bool {
		return graph.Sources[i].Name < graph.Sources[j].Name
	})

	known := make(map[string]bool, len(sources))
	for _, s := range sources {
		known[s.Name] = true
	}

	// First pass: one node per descriptor.
	for _, d := range descs {
		if _, exists := graph.Nodes[d.Name]; exists {
			return nil, fmt.Errorf("duplicate task descriptor %q", d.Name)
		}
		graph.Nodes[d.Name] = &Node{
			Desc:       d,
			Inputs:     make(map[string]Endpoint, len(d.Inputs)),
			Deps:       make(map[string]*Node),
			Dependents: make(map[string]*Node),
		}
	}
	logger.Debug("Build: node creation complete.", "node_count", len(graph.Nodes))

	// Second pass: resolve every binding and link the edges it induces.
	for _, b := range binds {
		node, ok := graph.Nodes[b.To.Task]
		if !ok {
			return nil, fmt.Errorf("binding targets unknown task %q", b.To.Task)
		}
		if _, ok := node.Desc.InputPort(b.To.Port); !ok {
			return nil, fmt.Errorf("binding targets undeclared input %s", b.To)
		}
		if _, dup := node.Inputs[b.To.Port]; dup {
			return nil, fmt.Errorf("input %s is bound twice", b.To)
		}

		if b.From.Task == "" {
			if !known[b.From.Port] {
				return nil, fmt.Errorf("input %s bound to unknown source %q", b.To, b.From.Port)
			}
		} else {
			producer, ok := graph.Nodes[b.From.Task]
			if !ok {
				return nil, fmt.Errorf("input %s bound to unknown task %q", b.To, b.From.Task)
			}
			if _, ok := producer.Desc.OutputPort(b.From.Port); !ok {
				return nil, fmt.Errorf("input %s bound to undeclared output %s", b.To, b.From)
			}
			if err := addEdge(producer, node); err != nil {
				return nil, err
			}
		}
		node.Inputs[b.To.Port] = b.From
	}
	logger.Debug("Build: binding resolution complete.")

	// Third pass: every declared input must have been bound.
	for _, name := range graph.TaskNames() {
		node := graph.Nodes[name]
		for _, p := range node.Desc.Inputs {
			if _, ok := node.Inputs[p.Name]; !ok {
				return nil, &UnboundInputError{Task: name, Port: p.Name}
			}
		}
	}

	if err := graph.detectCycles(); err != nil {
		return nil, err
	}
	logger.Debug("Build: cycle detection passed.")

	logger.Debug("Build: graph construction successful.")
	return graph, nil
}
