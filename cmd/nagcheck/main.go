// Package main is the nagcheck CLI entry point.
package main

import (
	"os"

	"github.com/ppiankov/nagcheck/internal/cli"
)

// Build info set at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetBuildInfo(version, commit, date)
	os.Exit(cli.Execute())
}
