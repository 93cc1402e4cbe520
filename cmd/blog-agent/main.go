// Package main is the entry point for the blog-agent CLI.
//
// All commands live in internal/cli. Build-time variables are injected via
// ldflags by GoReleaser; during development they default to "dev", "none"
// and "unknown".
package main

import (
	"github.com/shinji-kodama/blog-agent/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	cli.Execute(cli.NewRootCommand())
}
