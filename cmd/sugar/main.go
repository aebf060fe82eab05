package main

import (
	"os"

	"github.com/conduit-lang/sugar/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
