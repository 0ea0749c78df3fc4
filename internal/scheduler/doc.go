// Package scheduler walks a validated task graph and drives it to
// completion: it wires the data channels between task ports, creates a
// task instance the moment a join or broadcast delivers a complete input
// set for a key, admits instances against the run's thread budget in
// strict arrival order, and dispatches them to worker goroutines that
// invoke the external tools.
//
// All channel traffic and all state transitions happen inside one event
// loop goroutine; workers only report back through the completion queue.
// The thread budget is therefore mutated from exactly one place, which is
// what rules out over-subscription races. Failure is isolated per sample
// key: a failed instance poisons only its own key's downstream, recorded
// as skipped, and the run keeps going for every other sample.
package scheduler
