package main

import (
	"os"

	"github.com/conduit-lang/hmr/internal/cli/commands"
)

// Version information is injected with
//
//	-ldflags "-X github.com/conduit-lang/hmr/internal/cli/commands.Version=..."
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
