// Package model defines the domain types and value objects for the
// blog-agent CLI.
//
// This package contains pure data structures with no external dependencies:
// post metadata, publish requests and results, container snapshots used by
// the deploy commands, and the exit codes (ExitCode) plus the CLIError type
// that carries them to the process exit.
package model
