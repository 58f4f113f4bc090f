package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/specialistvlad/buildgrid/internal/app"
	"github.com/specialistvlad/buildgrid/internal/proc"
)

// Exit codes besides those propagated from external processes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
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

// Parse processes command-line arguments. It returns a populated Config, a
// boolean indicating if the program should exit cleanly, or an ExitError.
// Flags and targets may be interleaved.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("buildgrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
buildgrid - A declarative build and packaging pipeline for editor extensions.

Usage:
  buildgrid [options] [TARGET...]

Arguments:
  TARGET
    Task or watch target to run. Defaults to settings.default.
    Several tasks run in parallel unless -series is given.

Options:
`)
		flagSet.PrintDefaults()
	}

	fileFlag := flagSet.String("file", ".", "Path to the pipeline file or directory.")
	fFlag := flagSet.String("f", "", "Path to the pipeline file or directory (shorthand).")
	listFlag := flagSet.Bool("list", false, "List tasks and watch targets, then exit.")
	dryRunFlag := flagSet.Bool("dry-run", false, "Print the execution plan without running it.")
	seriesFlag := flagSet.Bool("series", false, "Run several targets one after another.")
	workersFlag := flagSet.Int("workers", 4, "Number of concurrent workers for the executor.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server in watch mode. 0 is disabled.")

	var targets []string
	rest := args
	for {
		if err := flagSet.Parse(rest); err != nil {
			if err == flag.ErrHelp {
				return nil, true, nil
			}
			return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
		}
		if flagSet.NArg() == 0 {
			break
		}
		targets = append(targets, flagSet.Arg(0))
		rest = flagSet.Args()[1:]
	}
	slog.Debug("Arguments parsed successfully.", "targets", targets)

	path := *fileFlag
	if *fFlag != "" {
		path = *fFlag
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: ExitUsage, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: ExitUsage, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		PipelinePath:    path,
		Targets:         targets,
		List:            *listFlag,
		DryRun:          *dryRunFlag,
		Series:          *seriesFlag,
		HealthcheckPort: *healthPortFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		WorkerCount:     *workersFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}

// ExitCode maps an error returned by the application to a process exit
// code. A failing external process passes its own code through.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, app.ErrNoTarget) {
		return ExitUsage
	}
	var procErr *proc.ExitError
	if errors.As(err, &procErr) && procErr.Code > 0 {
		return procErr.Code
	}
	return ExitFailure
}
