// Package config defines the validated, run-wide configuration. A Run
// value is created once before graph construction, never mutated, and
// passed explicitly to every component that needs it; there is no ambient
// global state.
package config

import (
	"fmt"
	"os"
)

// Mode selects which of the two graph variants is built. The branch is
// taken exactly once, at build time; nothing downstream of the builder
// ever consults the mode again.
type Mode string

const (
	// ModeONT is the single-end long-read (Oxford Nanopore) pipeline.
	ModeONT Mode = "ont"
	// ModePE is the paired-end short-read pipeline.
	ModePE Mode = "pe"
)

// Run holds every run-wide setting, validated and read-only.
type Run struct {
	Mode        Mode
	ReadsFolder string
	Threads     int
	RunName     string
	OutFolder   string

	// Dev truncates the sample set to DevInputs samples, chosen
	// deterministically by lexicographic filename order.
	Dev       bool
	DevInputs int

	// Tool passthrough options.
	ClassifierDB string
	KeepTaxIDs   string
	Reference    string

	// RefName is the run-wide name given to the fetched reference
	// genome in all derived artifact filenames.
	RefName string

	// ToolsFile optionally overrides the embedded tool profiles.
	ToolsFile string

	LogLevel        string
	LogFormat       string
	HealthcheckPort int
	CPUProfileDir   string
}

// Error is a configuration validation failure. It always surfaces before
// any graph is built or any external process is launched.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Validate checks a raw Run value and returns it unchanged on success.
// It is pure apart from stat-ing the reads folder, and idempotent: a Run
// that validated once validates again.
func Validate(cfg Run) (*Run, error) {
	onts := cfg.Mode == ModeONT
	pe := cfg.Mode == ModePE
	if !onts && !pe {
		return nil, &Error{Field: "mode", Reason: "exactly one of --ont or --pe must be selected"}
	}

	if cfg.Threads <= 0 {
		return nil, &Error{Field: "threads", Reason: fmt.Sprintf("must be positive, got %d", cfg.Threads)}
	}

	if cfg.ReadsFolder == "" {
		return nil, &Error{Field: "readsfolder", Reason: "is required"}
	}
	info, err := os.Stat(cfg.ReadsFolder)
	if err != nil {
		return nil, &Error{Field: "readsfolder", Reason: fmt.Sprintf("%q does not exist", cfg.ReadsFolder)}
	}
	if !info.IsDir() {
		return nil, &Error{Field: "readsfolder", Reason: fmt.Sprintf("%q is not a directory", cfg.ReadsFolder)}
	}

	if cfg.RunName == "" {
		return nil, &Error{Field: "runname", Reason: "is required"}
	}
	if cfg.OutFolder == "" {
		cfg.OutFolder = cfg.RunName + "_out"
	}

	if cfg.DevInputs > 0 {
		// Naming a truncation count implies dev mode.
		cfg.Dev = true
	}
	if cfg.Dev && cfg.DevInputs <= 0 {
		return nil, &Error{Field: "devinputs", Reason: "must be positive when --dev is set"}
	}

	if cfg.Reference == "" {
		return nil, &Error{Field: "reference", Reason: "is required"}
	}
	if cfg.RefName == "" {
		cfg.RefName = "reference"
	}

	return &cfg, nil
}
