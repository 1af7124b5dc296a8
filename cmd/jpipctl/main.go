package main

import (
	"os"

	"github.com/codeninja55/go-jpip/cmd/jpipctl/internal/cli"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := cli.Run(version, commit, date); err != nil {
		os.Exit(1)
	}
}
