package version

import (
	"github.com/clinica-juridica/expediente/internal/cmd/base"
	"github.com/clinica-juridica/expediente/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the version"
}

func (c *Command) Help() string {
	return "Usage: expediente version"
}

func (c *Command) Run(args []string) int {
	c.UI.Output(version.Version)
	return 0
}
