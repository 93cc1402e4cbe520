package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/blog-agent/internal/scaffold"
)

// lockRunner regenerates the lockfile. Tests replace it.
var lockRunner scaffold.CommandRunner = scaffold.ExecRunner

type initFlags struct {
	dir         string
	packageName string
	repoName    string
	owner       string
	dryRun      bool
	yes         bool
}

// NewInitCommand creates the "init" command, which turns a fresh checkout
// of the agent template into a new project.
func NewInitCommand() *cobra.Command {
	flags := &initFlags{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new project from the agent template",
		Long: `Rename a checkout of the agent template for a new project.

The template's package, repository and owner names are replaced across a
fixed list of files, the package directory is renamed, the project file's
authors are removed and its version reset to 0.1.0, README.md and
CHANGELOG.md are replaced, and the lockfile is regenerated.

The file list and commands can be overridden by a .template.jsonc manifest
at the template root. Missing files are skipped with a warning.

Examples:
  blog-agent init --package blog_writer --repo blog-writer --owner acme --dry-run
  blog-agent init --package blog_writer --repo blog-writer --owner acme --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.dir, "dir", ".", "Template checkout to initialize")
	cmd.Flags().StringVar(&flags.packageName, "package", "", "New package name (required)")
	cmd.Flags().StringVar(&flags.repoName, "repo", "", "New repository name (required)")
	cmd.Flags().StringVar(&flags.owner, "owner", "", "New repository owner (required)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Show the planned actions without changing anything")
	cmd.Flags().BoolVarP(&flags.yes, "yes", "y", false, "Apply without asking for confirmation")
	_ = cmd.MarkFlagRequired("package")
	_ = cmd.MarkFlagRequired("repo")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func runInit(cmd *cobra.Command, flags *initFlags) error {
	ctx := cmd.Context()

	manifest, err := scaffold.LoadManifest(flags.dir)
	if err != nil {
		return err
	}
	VerboseLog("Template identity: package=%s repo=%s owner=%s",
		manifest.Template.Package, manifest.Template.Repo, manifest.Template.Owner)

	opts := scaffold.Options{
		PackageName: flags.packageName,
		RepoName:    flags.repoName,
		Owner:       flags.owner,
		DryRun:      flags.dryRun,
	}
	in := &scaffold.Initializer{Root: flags.dir, Manifest: manifest, Logger: logger, Run: lockRunner}

	if flags.dryRun {
		actions, err := in.Execute(ctx, opts)
		if err != nil {
			return err
		}
		printInitResult(cmd, actions, true)
		return nil
	}

	actions, err := scaffold.Plan(flags.dir, opts, manifest)
	if err != nil {
		return err
	}
	if !flags.yes {
		if !IsJSONOutput() {
			printActions(cmd.OutOrStdout(), actions)
		}
		if err := requireConfirmation(fmt.Sprintf("Apply %d actions to %s?", len(actions), flags.dir)); err != nil {
			return err
		}
	}

	if err := in.Apply(ctx, opts, actions); err != nil {
		return err
	}
	printInitResult(cmd, actions, false)
	return nil
}

func printInitResult(cmd *cobra.Command, actions []scaffold.Action, dryRun bool) {
	if IsJSONOutput() {
		printJSON(cmd, map[string]any{"dryRun": dryRun, "actions": actions})
		return
	}

	out := cmd.OutOrStdout()
	printActions(out, actions)
	if dryRun {
		fmt.Fprintln(out, hintStyle.Render("Dry run: no files were changed."))
		return
	}
	fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("Applied %d actions.", countApplied(actions))))
}

// printActions prints one aligned line per action. Skipped paths are
// highlighted as warnings.
func printActions(w io.Writer, actions []scaffold.Action) {
	for _, a := range actions {
		line := fmt.Sprintf("%-16s %-32s %s", a.Kind, a.Path, a.Detail)
		if a.Kind == scaffold.ActionSkip {
			line = warningStyle.Render(line)
		}
		fmt.Fprintln(w, line)
	}
}

func countApplied(actions []scaffold.Action) int {
	n := 0
	for _, a := range actions {
		if a.Kind != scaffold.ActionSkip {
			n++
		}
	}
	return n
}
