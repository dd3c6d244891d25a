package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/insituflow/flume/internal/app"
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

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("flume", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
Flume - a dataflow engine for in-situ analysis of simulation meshes.

Usage:
  flume [options] [ACTIONS_PATH]

Arguments:
  ACTIONS_PATH
    Path to an .hcl action file with filter, connect and expression blocks.

Options:
`)
		flagSet.PrintDefaults()
	}

	actionsFlag := flagSet.String("actions", "", "Path to the action file.")
	aFlag := flagSet.String("a", "", "Path to the action file (shorthand).")
	dataFlag := flagSet.String("data", "", "Path to a blueprint dataset file (.json, .yaml). Empty synthesizes the example mesh.")
	domainsFlag := flagSet.Int("example-domains", 1, "Domain count for the synthesized example mesh.")
	pointsFlag := flagSet.Int("example-points", 11, "Points per side for the synthesized example mesh.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *actionsFlag != "" {
		path = *actionsFlag
	} else if *aFlag != "" {
		path = *aFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Actions path determined.", "path", path)

	if path == "" {
		slog.Debug("No actions path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ActionsPath:    path,
		DataPath:       *dataFlag,
		ExampleDomains: *domainsFlag,
		ExamplePoints:  *pointsFlag,
		LogFormat:      logFormat,
		LogLevel:       logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
