// Package cli parses the command line into an application configuration.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vk/zgoubigo/internal/app"
	"github.com/vk/zgoubigo/internal/config"
)

// ExitError is an error carrying a specific process exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app config,
// a boolean indicating the program should exit cleanly (help, missing deck),
// or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("zgoubigo", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
zgoubigo - a front-end for running parametric particle-tracking batches.

Usage:
  zgoubigo [options] [DECK_PATH]

Arguments:
  DECK_PATH
    Path to a beamline deck (.hcl file).

Options:
`)
		flagSet.PrintDefaults()
	}

	deckFlag := flagSet.String("deck", "", "Path to the beamline deck file.")
	dFlag := flagSet.String("d", "", "Path to the beamline deck file (shorthand).")
	configFlag := flagSet.String("config", config.DefaultFilename, "Path to the runtime YAML configuration.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	engineFlag := flagSet.String("engine", "", "Engine binary name or path (overrides the config file).")
	maxProcsFlag := flagSet.Int("max-procs", 0, "Maximum concurrent engine processes. 0 keeps the config value.")
	outputFlag := flagSet.String("output", "", "Directory result tables are written to (overrides the config file).")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	path := ""
	if *deckFlag != "" {
		path = *deckFlag
	} else if *dFlag != "" {
		path = *dFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	if path == "" {
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
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	cfg, err := app.NewConfig(app.Config{
		DeckPath:   path,
		ConfigPath: *configFlag,
		LogFormat:  logFormat,
		LogLevel:   logLevel,
		Engine:     *engineFlag,
		MaxProcs:   *maxProcsFlag,
		OutputDir:  *outputFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	return cfg, false, nil
}
