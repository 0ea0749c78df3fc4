// Package task defines the immutable description of one unit of pipeline
// work and the mutable record of one execution of it.
//
// A Descriptor is a template: named input and output ports, a thread
// requirement, and a reference to the external tool that does the actual
// work. An Instance is a Descriptor bound to the concrete values of one
// sample (or of the whole run, for non-keyed tasks). Descriptors are
// registered once at graph-build time and never change; Instances are
// created and owned exclusively by the scheduler.
package task

import (
	"github.com/zclconf/go-cty/cty"
)

// PortKind describes the semantic type of a value flowing through a port.
type PortKind int

const (
	// Scalar is a plain value (accession string, taxon id list, ...).
	Scalar PortKind = iota
	// File is a path to an artifact on disk produced or consumed by a tool.
	File
	// FilePair is two related paths, e.g. the R1/R2 halves of a paired
	// FASTQ sample or a BAM plus its index.
	FilePair
)

// Port is one named input or output of a task.
type Port struct {
	Name string
	Kind PortKind
}

// Descriptor is the immutable definition of one unit of work.
type Descriptor struct {
	// Name uniquely identifies the task within one graph.
	Name string

	// Inputs and Outputs declare the ports, in order.
	Inputs  []Port
	Outputs []Port

	// Threads is the number of threads the external tool is launched
	// with. The scheduler admits an instance only when this many threads
	// fit into the remaining run budget.
	Threads int

	// Tool names the command template in the tool profile that this task
	// renders and executes.
	Tool string

	// Collect marks an aggregation task: instance creation is deferred
	// until every upstream channel has been exhausted, and the single
	// instance receives all buffered records as one batch.
	Collect bool

	// SkipWhen, if set, suppresses instance creation for a record. The
	// skipped instance is surfaced in the run summary, not silently lost.
	SkipWhen func(Record) bool

	// Reduce, for collecting tasks, folds the buffered batch into the
	// single instance's input record. Nil means an empty run-scoped
	// record; the batch itself always travels on the instance.
	Reduce func(batch []Record) (Record, error)
}

// InputPort returns the declared input port with the given name.
func (d *Descriptor) InputPort(name string) (Port, bool) {
	for _, p := range d.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// OutputPort returns the declared output port with the given name.
func (d *Descriptor) OutputPort(name string) (Port, bool) {
	for _, p := range d.Outputs {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// Record is one value set flowing between tasks. Key carries the sample
// identity; run-scoped records (e.g. the fetched reference) have an empty
// key and join against every sample.
type Record struct {
	Key    string
	Fields map[string]cty.Value
}

// NewRecord returns an empty record for the given sample key.
func NewRecord(key string) Record {
	return Record{Key: key, Fields: map[string]cty.Value{}}
}

// With returns a copy of the record with one field set.
func (r Record) With(name string, v cty.Value) Record {
	out := Record{Key: r.Key, Fields: make(map[string]cty.Value, len(r.Fields)+1)}
	for k, val := range r.Fields {
		out.Fields[k] = val
	}
	out.Fields[name] = v
	return out
}

// WithPath is a convenience for the common case of a file-valued field.
func (r Record) WithPath(name, path string) Record {
	return r.With(name, cty.StringVal(path))
}

// Path returns the string value of a field, or "" if absent or non-string.
func (r Record) Path(name string) string {
	v, ok := r.Fields[name]
	if !ok || v.Type() != cty.String {
		return ""
	}
	return v.AsString()
}

// Merge combines two records for the same key into one. Fields of b win on
// collision. Merging a keyed record with a run-scoped one keeps the key.
func Merge(a, b Record) Record {
	key := a.Key
	if key == "" {
		key = b.Key
	}
	out := Record{Key: key, Fields: make(map[string]cty.Value, len(a.Fields)+len(b.Fields))}
	for k, v := range a.Fields {
		out.Fields[k] = v
	}
	for k, v := range b.Fields {
		out.Fields[k] = v
	}
	return out
}
