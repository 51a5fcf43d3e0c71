package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/bidevalgo/internal/app"
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

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("bidevalgo", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
bidevalgo - Dynamic evaluation engine for procurement bid pricing.

Usage:
  bidevalgo [options]

A specification source is required: either -spec with a saved extraction
response, or -document with -backend to upload a procurement document to
the extraction service.

Options:
`)
		flagSet.PrintDefaults()
	}

	specFlag := flagSet.String("spec", "", "Path to a saved extraction response (JSON).")
	documentFlag := flagSet.String("document", "", "Path to a procurement document to upload.")
	backendFlag := flagSet.String("backend", "", "Base URL of the extraction backend.")
	inputsFlag := flagSet.String("inputs", "", "Path to a JSON file with form field values.")
	configFlag := flagSet.String("config", "", "Path to a YAML config file.")
	timeoutFlag := flagSet.Duration("timeout", 0, "Extraction request timeout (default 3m).")
	logFormatFlag := flagSet.String("log-format", "", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	if *specFlag == "" && *documentFlag == "" && *configFlag == "" {
		slog.Debug("No specification source provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "" && logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	cfg := app.Config{
		SpecPath:     *specFlag,
		DocumentPath: *documentFlag,
		BackendURL:   *backendFlag,
		InputsPath:   *inputsFlag,
		LogFormat:    logFormat,
		LogLevel:     logLevel,
		HTTPTimeout:  *timeoutFlag,
	}

	if *configFlag != "" {
		if err := cfg.LoadFile(*configFlag); err != nil {
			return nil, false, &ExitError{Code: 2, Message: err.Error()}
		}
	}

	config, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.")
	return config, false, nil
}
