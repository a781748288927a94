package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/clinica-juridica/expediente/internal/cmd/base"
	"github.com/clinica-juridica/expediente/internal/cmd/commands/serve"
	"github.com/clinica-juridica/expediente/internal/cmd/commands/verify"
	"github.com/clinica-juridica/expediente/internal/cmd/commands/version"
)

// Commands is the mapping of all available commands.
var Commands map[string]cli.CommandFactory

func initCommands(log hclog.Logger, ui cli.Ui) {
	b := &base.Command{
		Log: log,
		UI:  ui,
	}

	Commands = map[string]cli.CommandFactory{
		"serve": func() (cli.Command, error) {
			return &serve.Command{Command: b}, nil
		},
		"verify": func() (cli.Command, error) {
			return &verify.Command{Command: b}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{Command: b}, nil
		},
	}
}
