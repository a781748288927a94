package main

import (
	"os"

	"github.com/clinica-juridica/expediente/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
