// Package app is the composition root. It owns the logger, assembles the
// pipeline graph for the configured mode, drives the scheduler, and
// publishes the output bundle when the run is over.
package app
