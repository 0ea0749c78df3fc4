// Package pipeline declares the viral sequencing workflow: the task
// descriptors of each processing stage, the port bindings that wire them
// into a DAG, and the external source channels the run starts from.
//
// Two structurally different graphs exist, one per run mode. The branch
// is taken exactly once, here, when the descriptor and binding sets are
// assembled; the builder and scheduler never see a conditional edge.
package pipeline

import (
	"context"
	"fmt"

	"github.com/vk/viraflow/internal/config"
	"github.com/vk/viraflow/internal/dag"
	"github.com/vk/viraflow/internal/task"
	"github.com/vk/viraflow/internal/tooldef"
)

// External source channel names.
const (
	// SourceSamples carries one keyed record per discovered sample.
	SourceSamples = "samples"
	// SourceAccession carries the single run-scoped reference request.
	SourceAccession = "accession"
)

// Graph builds the validated dependency graph for the configured mode.
func Graph(ctx context.Context, cfg *config.Run, profile *tooldef.Profile) (*dag.Graph, error) {
	var descs []*task.Descriptor
	var binds []dag.Binding

	switch cfg.Mode {
	case config.ModePE:
		descs, binds = pairedEnd(profile)
	case config.ModeONT:
		descs, binds = longRead(profile)
	default:
		return nil, fmt.Errorf("unknown run mode %q", cfg.Mode)
	}

	sources := []dag.Source{
		{Name: SourceSamples},
		{Name: SourceAccession, RunScoped: true},
	}
	return dag.Build(ctx, descs, binds, sources)
}

// desc looks up the tool's default thread requirement and builds one
// descriptor. A missing tool profile is a wiring defect, caught before
// any graph is built.
func desc(profile *tooldef.Profile, name, tool string, inputs, outputs []task.Port) *task.Descriptor {
	threads := 1
	if t, ok := profile.Tool(tool); ok {
		threads = t.Threads
	}
	return &task.Descriptor{
		Name:    name,
		Tool:    tool,
		Threads: threads,
		Inputs:  inputs,
		Outputs: outputs,
	}
}

func ports(kind task.PortKind, names ...string) []task.Port {
	out := make([]task.Port, len(names))
	for i, n := range names {
		out[i] = task.Port{Name: n, Kind: kind}
	}
	return out
}

// pairedEnd is the short-read variant:
// trim -> classify -> extract -> align -> sortindex -> call, then the
// per-sample call fan-out (stats, filter -> multimut) and haplo, with
// report collecting every sample's terminal artifacts.
func pairedEnd(p *tooldef.Profile) ([]*task.Descriptor, []dag.Binding) {
	descs := []*task.Descriptor{
		desc(p, "fetchref", "fetchref",
			ports(task.Scalar, "accession"),
			ports(task.File, "fasta", "fai")),
		desc(p, "trim", "trim_pe",
			ports(task.FilePair, "reads"),
			ports(task.File, "trimmed1", "trimmed2", "report")),
		desc(p, "classify", "classify_pe",
			ports(task.File, "reads1", "reads2"),
			ports(task.File, "report", "assignments")),
		desc(p, "extract", "extract_pe",
			ports(task.File, "assignments", "report", "reads1", "reads2"),
			ports(task.File, "filtered1", "filtered2")),
		desc(p, "align", "align_pe",
			ports(task.File, "reads1", "reads2", "reference"),
			ports(task.File, "bam")),
		desc(p, "sortindex", "sortindex",
			ports(task.File, "bam"),
			ports(task.File, "sorted", "index")),
		desc(p, "call", "call",
			ports(task.File, "bam", "reference"),
			ports(task.File, "vcf")),
		desc(p, "stats", "stats",
			ports(task.File, "vcf"),
			ports(task.File, "table")),
		desc(p, "filter", "filter",
			ports(task.File, "vcf"),
			ports(task.File, "filtered")),
		desc(p, "multimut", "multimut",
			ports(task.File, "bam", "vcf", "reference"),
			ports(task.File, "table")),
		desc(p, "haplo", "haplo",
			ports(task.File, "bam"),
			ports(task.File, "haplotypes")),
		desc(p, "report", "report",
			ports(task.File, "bam", "variants", "stats", "comutations", "haplotypes"),
			ports(task.File, "done")),
	}
	descs[len(descs)-1].Collect = true

	binds := []dag.Binding{
		bind("fetchref", "accession", dag.FromSource(SourceAccession)),
		bind("trim", "reads", dag.FromSource(SourceSamples)),
		bind("classify", "reads1", dag.FromTask("trim", "trimmed1")),
		bind("classify", "reads2", dag.FromTask("trim", "trimmed2")),
		bind("extract", "assignments", dag.FromTask("classify", "assignments")),
		bind("extract", "report", dag.FromTask("classify", "report")),
		bind("extract", "reads1", dag.FromTask("trim", "trimmed1")),
		bind("extract", "reads2", dag.FromTask("trim", "trimmed2")),
		bind("align", "reads1", dag.FromTask("extract", "filtered1")),
		bind("align", "reads2", dag.FromTask("extract", "filtered2")),
		bind("align", "reference", dag.FromTask("fetchref", "fasta")),
		bind("sortindex", "bam", dag.FromTask("align", "bam")),
		bind("call", "bam", dag.FromTask("sortindex", "sorted")),
		bind("call", "reference", dag.FromTask("fetchref", "fasta")),
		bind("stats", "vcf", dag.FromTask("call", "vcf")),
		bind("filter", "vcf", dag.FromTask("call", "vcf")),
		bind("multimut", "bam", dag.FromTask("sortindex", "sorted")),
		bind("multimut", "vcf", dag.FromTask("filter", "filtered")),
		bind("multimut", "reference", dag.FromTask("fetchref", "fasta")),
		bind("haplo", "bam", dag.FromTask("sortindex", "sorted")),
		bind("report", "bam", dag.FromTask("sortindex", "sorted")),
		bind("report", "variants", dag.FromTask("filter", "filtered")),
		bind("report", "stats", dag.FromTask("stats", "table")),
		bind("report", "comutations", dag.FromTask("multimut", "table")),
		bind("report", "haplotypes", dag.FromTask("haplo", "haplotypes")),
	}
	return descs, binds
}

// longRead is the nanopore variant: single-end trim and classify, a de
// novo assembly branch alongside reference alignment, no read-pair
// dependent co-mutation scan.
func longRead(p *tooldef.Profile) ([]*task.Descriptor, []dag.Binding) {
	descs := []*task.Descriptor{
		desc(p, "fetchref", "fetchref",
			ports(task.Scalar, "accession"),
			ports(task.File, "fasta", "fai")),
		desc(p, "trim", "trim_ont",
			ports(task.File, "reads"),
			ports(task.File, "trimmed")),
		desc(p, "classify", "classify_ont",
			ports(task.File, "reads"),
			ports(task.File, "report", "assignments")),
		desc(p, "extract", "extract_ont",
			ports(task.File, "assignments", "report", "reads"),
			ports(task.File, "filtered")),
		desc(p, "assemble", "assemble",
			ports(task.File, "reads"),
			ports(task.File, "assembly")),
		desc(p, "align", "align_ont",
			ports(task.File, "reads", "reference"),
			ports(task.File, "bam")),
		desc(p, "sortindex", "sortindex",
			ports(task.File, "bam"),
			ports(task.File, "sorted", "index")),
		desc(p, "call", "call",
			ports(task.File, "bam", "reference"),
			ports(task.File, "vcf")),
		desc(p, "stats", "stats",
			ports(task.File, "vcf"),
			ports(task.File, "table")),
		desc(p, "filter", "filter",
			ports(task.File, "vcf"),
			ports(task.File, "filtered")),
		desc(p, "haplo", "haplo",
			ports(task.File, "bam"),
			ports(task.File, "haplotypes")),
		desc(p, "report", "report",
			ports(task.File, "bam", "variants", "stats", "assembly", "haplotypes"),
			ports(task.File, "done")),
	}
	descs[len(descs)-1].Collect = true

	binds := []dag.Binding{
		bind("fetchref", "accession", dag.FromSource(SourceAccession)),
		bind("trim", "reads", dag.FromSource(SourceSamples)),
		bind("classify", "reads", dag.FromTask("trim", "trimmed")),
		bind("extract", "assignments", dag.FromTask("classify", "assignments")),
		bind("extract", "report", dag.FromTask("classify", "report")),
		bind("extract", "reads", dag.FromTask("trim", "trimmed")),
		bind("assemble", "reads", dag.FromTask("extract", "filtered")),
		bind("align", "reads", dag.FromTask("extract", "filtered")),
		bind("align", "reference", dag.FromTask("fetchref", "fasta")),
		bind("sortindex", "bam", dag.FromTask("align", "bam")),
		bind("call", "bam", dag.FromTask("sortindex", "sorted")),
		bind("call", "reference", dag.FromTask("fetchref", "fasta")),
		bind("stats", "vcf", dag.FromTask("call", "vcf")),
		bind("filter", "vcf", dag.FromTask("call", "vcf")),
		bind("haplo", "bam", dag.FromTask("sortindex", "sorted")),
		bind("report", "bam", dag.FromTask("sortindex", "sorted")),
		bind("report", "variants", dag.FromTask("filter", "filtered")),
		bind("report", "stats", dag.FromTask("stats", "table")),
		bind("report", "assembly", dag.FromTask("assemble", "assembly")),
		bind("report", "haplotypes", dag.FromTask("haplo", "haplotypes")),
	}
	return descs, binds
}

func bind(taskName, port string, from dag.Endpoint) dag.Binding {
	return dag.Binding{To: dag.Endpoint{Task: taskName, Port: port}, From: from}
}
