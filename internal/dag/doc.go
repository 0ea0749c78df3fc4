// Package dag builds and validates the dependency graph of a pipeline
// run. Task descriptors plus port bindings go in; a validated, acyclic
// graph comes out, with every input port resolved to either an external
// source channel or another task's output port.
//
// The graph carries no notion of run mode. The ont/pe branch is taken
// once, before Build is called, by handing in a different descriptor and
// binding set; the scheduler downstream only ever sees one unconditional
// shape.
package dag
