// Package cli translates command-line arguments into a validated run
// configuration. It is the only place that knows about flags; everything
// past it works with config.Run.
package cli
