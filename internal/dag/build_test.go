package dag

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/viraflow/internal/task"
)

func simpleDesc(name string, inputs, outputs []string) *task.Descriptor {
	d := &task.Descriptor{Name: name, Threads: 1}
	for _, in := range inputs {
		d.Inputs = append(d.Inputs, task.Port{Name: in, Kind: task.File})
	}
	for _, out := range outputs {
		d.Outputs = append(d.Outputs, task.Port{Name: out, Kind: task.File})
	}
	return d
}

// linearFixture is a -> b -> c fed by one source.
func linearFixture() ([]*task.Descriptor, []Binding, []Source) {
	descs := []*task.Descriptor{
		{Name: "a", Threads: 1,
			Inputs:  []task.Port{{Name: "in", Kind: task.File}},
			Outputs: []task.Port{{Name: "out", Kind: task.File}}},
		{Name: "b", Threads: 1,
			Inputs:  []task.Port{{Name: "in", Kind: task.File}},
			Outputs: []task.Port{{Name: "out", Kind: task.File}}},
		{Name: "c", Threads: 1,
			Inputs:  []task.Port{{Name: "in", Kind: task.File}},
			Outputs: []task.Port{{Name: "out", Kind: task.File}}},
	}
	binds := []Binding{
		{To: Endpoint{Task: "a", Port: "in"}, From: FromSource("reads")},
		{To: Endpoint{Task: "b", Port: "in"}, From: FromTask("a", "out")},
		{To: Endpoint{Task: "c", Port: "in"}, From: FromTask("b", "out")},
	}
	return descs, binds, []Source{{Name: "reads"}}
}

func TestBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("linear chain", func(t *testing.T) {
		descs, binds, sources := linearFixture()
		g, err := Build(ctx, descs, binds, sources)
		require.NoError(t, err)

		assert.Equal(t, []string{"a", "b", "c"}, g.TaskNames())
		assert.Equal(t, map[string][]string{
			"a": {"b"},
			"b": {"c"},
		}, g.Edges())

		roots := g.Roots()
		require.Len(t, roots, 1)
		assert.Equal(t, "a", roots[0].Desc.Name)

		b, ok := g.Node("b")
		require.True(t, ok)
		assert.Equal(t, FromTask("a", "out"), b.Inputs["in"])
	})

	t.Run("diamond fan-out and fan-in", func(t *testing.T) {
		descs := []*task.Descriptor{
			simpleDesc("call", []string{"reads"}, []string{"vcf"}),
			simpleDesc("stats", []string{"vcf"}, []string{"table"}),
			simpleDesc("filter", []string{"vcf"}, []string{"filtered"}),
			simpleDesc("report", []string{"table", "filtered"}, []string{"done"}),
		}
		binds := []Binding{
			{To: Endpoint{Task: "call", Port: "reads"}, From: FromSource("reads")},
			{To: Endpoint{Task: "stats", Port: "vcf"}, From: FromTask("call", "vcf")},
			{To: Endpoint{Task: "filter", Port: "vcf"}, From: FromTask("call", "vcf")},
			{To: Endpoint{Task: "report", Port: "table"}, From: FromTask("stats", "table")},
			{To: Endpoint{Task: "report", Port: "filtered"}, From: FromTask("filter", "filtered")},
		}
		g, err := Build(ctx, descs, binds, []Source{{Name: "reads"}})
		require.NoError(t, err)
		assert.Equal(t, map[string][]string{
			"call":   {"filter", "stats"},
			"filter": {"report"},
			"stats":  {"report"},
		}, g.Edges())
	})

	t.Run("construction is pure", func(t *testing.T) {
		descs, binds, sources := linearFixture()
		g1, err := Build(ctx, descs, binds, sources)
		require.NoError(t, err)

		descs2, binds2, sources2 := linearFixture()
		g2, err := Build(ctx, descs2, binds2, sources2)
		require.NoError(t, err)

		if diff := cmp.Diff(g1.Edges(), g2.Edges()); diff != "" {
			t.Errorf("edge sets differ (-first +second):\n%s", diff)
		}
		assert.Equal(t, g1.TaskNames(), g2.TaskNames())
	})
}

func TestBuildErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate descriptor", func(t *testing.T) {
		descs := []*task.Descriptor{simpleDesc("a", nil, nil), simpleDesc("a", nil, nil)}
		_, err := Build(ctx, descs, nil, nil)
		assert.ErrorContains(t, err, "duplicate task descriptor")
	})

	t.Run("unbound input", func(t *testing.T) {
		descs := []*task.Descriptor{simpleDesc("a", []string{"in"}, nil)}
		_, err := Build(ctx, descs, nil, []Source{{Name: "reads"}})
		var unbound *UnboundInputError
		require.ErrorAs(t, err, &unbound)
		assert.Equal(t, "a", unbound.Task)
		assert.Equal(t, "in", unbound.Port)
	})

	t.Run("unknown source", func(t *testing.T) {
		descs := []*task.Descriptor{simpleDesc("a", []string{"in"}, nil)}
		binds := []Binding{{To: Endpoint{Task: "a", Port: "in"}, From: FromSource("nope")}}
		_, err := Build(ctx, descs, binds, nil)
		assert.ErrorContains(t, err, `unknown source "nope"`)
	})

	t.Run("unknown producer task", func(t *testing.T) {
		descs := []*task.Descriptor{simpleDesc("a", []string{"in"}, nil)}
		binds := []Binding{{To: Endpoint{Task: "a", Port: "in"}, From: FromTask("ghost", "out")}}
		_, err := Build(ctx, descs, binds, nil)
		assert.ErrorContains(t, err, `unknown task "ghost"`)
	})

	t.Run("undeclared ports", func(t *testing.T) {
		descs := []*task.Descriptor{
			simpleDesc("a", []string{"in"}, nil),
			{Name: "b", Threads: 1, Outputs: []task.Port{{Name: "out", Kind: task.File}}},
		}
		binds := []Binding{{To: Endpoint{Task: "a", Port: "nope"}, From: FromTask("b", "out")}}
		_, err := Build(ctx, descs, binds, nil)
		assert.ErrorContains(t, err, "undeclared input")

		binds = []Binding{{To: Endpoint{Task: "a", Port: "in"}, From: FromTask("b", "nope")}}
		_, err = Build(ctx, descs, binds, nil)
		assert.ErrorContains(t, err, "undeclared output")
	})

	t.Run("double-bound input", func(t *testing.T) {
		descs := []*task.Descriptor{
			simpleDesc("a", []string{"in"}, nil),
			{Name: "b", Threads: 1, Outputs: []task.Port{{Name: "out", Kind: task.File}}},
		}
		binds := []Binding{
			{To: Endpoint{Task: "a", Port: "in"}, From: FromTask("b", "out")},
			{To: Endpoint{Task: "a", Port: "in"}, From: FromTask("b", "out")},
		}
		_, err := Build(ctx, descs, binds, nil)
		assert.ErrorContains(t, err, "bound twice")
	})

	t.Run("cycle", func(t *testing.T) {
		descs := []*task.Descriptor{
			{Name: "a", Threads: 1,
				Inputs:  []task.Port{{Name: "in", Kind: task.File}},
				Outputs: []task.Port{{Name: "out", Kind: task.File}}},
			{Name: "b", Threads: 1,
				Inputs:  []task.Port{{Name: "in", Kind: task.File}},
				Outputs: []task.Port{{Name: "out", Kind: task.File}}},
		}
		binds := []Binding{
			{To: Endpoint{Task: "a", Port: "in"}, From: FromTask("b", "out")},
			{To: Endpoint{Task: "b", Port: "in"}, From: FromTask("a", "out")},
		}
		_, err := Build(ctx, descs, binds, nil)
		var cycle *CycleError
		assert.ErrorAs(t, err, &cycle)
	})

	t.Run("self edge", func(t *testing.T) {
		descs := []*task.Descriptor{
			{Name: "a", Threads: 1,
				Inputs:  []task.Port{{Name: "in", Kind: task.File}},
				Outputs: []task.Port{{Name: "out", Kind: task.File}}},
		}
		binds := []Binding{{To: Endpoint{Task: "a", Port: "in"}, From: FromTask("a", "out")}}
		_, err := Build(ctx, descs, binds, nil)
		assert.ErrorContains(t, err, "self-referential")
	})
}
