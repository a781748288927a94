package cmd

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/clinica-juridica/expediente/internal/version"
)

// LogLevelEnv selects the log level (trace, debug, info, warn, error).
const LogLevelEnv = "EXPEDIENTE_LOG_LEVEL"

// Main runs the CLI with the given arguments and returns the exit code.
func Main(args []string) int {
	return run(args, os.Stdin, os.Stdout, os.Stderr)
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	name := filepath.Base(args[0])

	level := hclog.LevelFromString(os.Getenv(LogLevelEnv))
	if level == hclog.NoLevel {
		level = hclog.Info
	}

	// Logs share stderr with UI errors so stdout stays machine readable.
	log := hclog.New(&hclog.LoggerOptions{
		Name:   name,
		Level:  level,
		Output: stderr,
	})

	if len(args) == 2 && (args[1] == "-version" || args[1] == "-v") {
		args = []string{args[0], "version"}
	}

	ui := &cli.BasicUi{
		Reader:      bufio.NewReader(stdin),
		Writer:      stdout,
		ErrorWriter: stderr,
	}

	initCommands(log, ui)

	c := &cli.CLI{
		Name:       name,
		Args:       args[1:],
		Version:    version.Version,
		Commands:   Commands,
		HelpWriter: stderr,
	}

	exitCode, err := c.Run()
	if err != nil {
		log.Error("error running command", "args", args[1:], "error", err)
		return 1
	}
	return exitCode
}
