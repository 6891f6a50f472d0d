package main

import (
	"os"

	"github.com/seqora/exportd/internal/cmd"
)

// Build-time metadata, stamped via -ldflags.
var (
	version   = "dev"
	commit    = "HEAD"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
