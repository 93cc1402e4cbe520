// Package logging builds the zap logger shared by every blog-agent command.
//
// The CLI constructs one logger in the root command's PersistentPreRunE and
// threads it through constructors; library packages never build their own.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	// Verbose lowers the level to debug.
	Verbose bool

	// JSON selects the production JSON encoder. When false a console
	// encoder is used, which reads better on a terminal.
	JSON bool
}

// New builds a logger writing to stderr. Stdout stays reserved for command
// output so that --json results remain machine-parseable.
func New(opts Options) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if !opts.JSON {
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		// Stack traces on every warning are noise for an interactive CLI.
		config.DisableStacktrace = true
	}

	level := zapcore.WarnLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	config.Level = zap.NewAtomicLevelAt(level)

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// OrNop returns l, or a no-op logger when l is nil. Constructors use it so
// callers (and tests) may pass nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Mask hides all but the last four characters of a secret value for logs
// and dry-run output. Values of four characters or fewer are fully masked.
func Mask(value string) string {
	const visible = 4
	if value == "" {
		return "(empty)"
	}
	if len(value) <= visible {
		return "****"
	}
	return "****" + value[len(value)-visible:]
}
