package cli

import (
	"flag"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/vk/viraflow/internal/config"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a validated run
// configuration, a boolean indicating the program should exit cleanly
// (help requested), or an ExitError.
func Parse(args []string, output io.Writer) (*config.Run, bool, error) {
	flagSet := flag.NewFlagSet("viraflow", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
viraflow - viral genome sequencing pipeline.

Usage:
  viraflow --runname NAME --readsfolder DIR (--ont | --pe) [options]

Options:
`)
		flagSet.PrintDefaults()
	}

	ont := flagSet.Bool("ont", false, "Run the single-end long-read (Oxford Nanopore) pipeline.")
	pe := flagSet.Bool("pe", false, "Run the paired-end short-read pipeline.")
	readsFolder := flagSet.String("readsfolder", "", "Folder containing the input FASTQ files.")
	runName := flagSet.String("runname", "", "Name of the run; also the default output folder prefix.")
	outFolder := flagSet.String("outfolder", "", "Output folder. Defaults to '<runname>_out'.")
	threads := flagSet.Int("threads", runtime.NumCPU(), "Total thread budget shared by all running tools.")
	dev := flagSet.Bool("dev", false, "Development mode: process only the first --devinputs samples.")
	devInputs := flagSet.Int("devinputs", 0, "Number of samples to keep in --dev mode.")
	krakenDB := flagSet.String("krakendb", "", "Path to the read classifier database.")
	taxid := flagSet.String("taxid", "", "Comma-separated taxonomy ids to keep after classification.")
	reference := flagSet.String("reference", "", "Reference genome accession to fetch.")
	refName := flagSet.String("refname", "", "Name used for the reference in derived artifact filenames.")
	toolsFile := flagSet.String("toolsfile", "", "Optional HCL file overriding the embedded tool profiles.")
	healthPort := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	logFormat := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevel := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	cpuProfile := flagSet.String("cpuprofile", "", "Directory to write a CPU profile into. Empty disables profiling.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 1, Message: err.Error()}
	}

	if len(args) == 0 {
		flagSet.Usage()
		return nil, true, nil
	}

	format := strings.ToLower(*logFormat)
	if format != "text" && format != "json" {
		return nil, false, &ExitError{Code: 1, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	level := strings.ToLower(*logLevel)
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 1, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	var mode config.Mode
	switch {
	case *ont && *pe:
		return nil, false, &ExitError{Code: 1, Message: "flags --ont and --pe are mutually exclusive"}
	case *ont:
		mode = config.ModeONT
	case *pe:
		mode = config.ModePE
	}

	cfg, err := config.Validate(config.Run{
		Mode:            mode,
		ReadsFolder:     *readsFolder,
		Threads:         *threads,
		RunName:         *runName,
		OutFolder:       *outFolder,
		Dev:             *dev,
		DevInputs:       *devInputs,
		ClassifierDB:    *krakenDB,
		KeepTaxIDs:      *taxid,
		Reference:       *reference,
		RefName:         *refName,
		ToolsFile:       *toolsFile,
		LogLevel:        level,
		LogFormat:       format,
		HealthcheckPort: *healthPort,
		CPUProfileDir:   *cpuProfile,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 1, Message: err.Error()}
	}
	return cfg, false, nil
}
