// Package cli implements the cobra-based CLI commands for blog-agent.
//
// Each subcommand (write, publish, serve, init, deploy) is defined in its
// own file within this package. This file defines the root command that
// serves as the parent for all subcommands and handles global flags.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shinji-kodama/blog-agent/internal/config"
	"github.com/shinji-kodama/blog-agent/internal/logging"
	"github.com/shinji-kodama/blog-agent/internal/model"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command.
var (
	// jsonOutput controls whether command output is formatted as JSON.
	jsonOutput bool

	// verbose enables detailed logging output for debugging.
	verbose bool

	// envFile is a dotenv file loaded before any command runs.
	envFile string

	// logger is built in PersistentPreRunE from the flags above.
	logger = zap.NewNop()
)

// Version, Commit, and Date are set at build time via ldflags.
// They are injected from the main package.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
//
// The root command itself does not perform any action. It builds the
// logger, loads --env-file, and provides help text and global flags.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "blog-agent",
		Short: "Blog writing and publishing agent, with its deployment tooling",
		Long: `blog-agent drafts blog posts with an LLM writer agent and publishes them
as pull requests against a blog repository.

It also carries the tooling around the agent: serving it over HTTP,
initializing new projects from the agent template, and the deployment
runbook (deploy keys, GitHub Actions secrets, compose lifecycle).`,

		// We format errors ourselves (text or JSON based on --json flag).
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := logging.New(logging.Options{Verbose: verbose, JSON: jsonOutput})
			if err != nil {
				return err
			}
			logger = l

			if envFile == "" {
				return nil
			}
			loaded, err := config.LoadEnvFile(envFile)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return model.NewCLIError(model.ExitConfigNotFound, fmt.Sprintf("env file not found: %s", envFile))
				}
				return model.WrapCLIError(model.ExitConfigInvalid, fmt.Sprintf("failed to load env file %s", envFile), err)
			}
			VerboseLog("Loaded %d variables from %s", len(loaded), envFile)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			// Sync fails on terminals (ENOTTY); nothing useful to report.
			_ = logger.Sync()
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from a dotenv file (shell values win)")

	rootCmd.AddCommand(NewWriteCommand())
	rootCmd.AddCommand(NewPublishCommand())
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(NewDeployCommand())

	return rootCmd
}

// Execute runs the root command and handles exit codes.
// CLIError types carry their own exit codes; other errors exit with 1.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		var cliErr *model.CLIError
		if errors.As(err, &cliErr) {
			printError(cliErr.Message, cliErr.Err)
			os.Exit(int(cliErr.Code))
		}

		printError(err.Error(), nil)
		os.Exit(int(model.ExitGeneralError))
	}
}

// printError outputs an error message on stderr in the format selected by
// the --json global flag. Stdout is reserved for successful output.
func printError(message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(os.Stderr, "%s %s: %v\n", errorStyle.Render("Error:"), message, underlying)
	} else {
		fmt.Fprintf(os.Stderr, "%s %s\n", errorStyle.Render("Error:"), message)
	}
}

// VerboseLog prints a message to stderr only when verbose mode is enabled.
func VerboseLog(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}

// IsJSONOutput returns whether the --json flag is set.
func IsJSONOutput() bool {
	return jsonOutput
}

// printJSON writes v as indented JSON to w.
func printJSON(cmd *cobra.Command, v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
}
