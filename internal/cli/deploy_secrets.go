package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shinji-kodama/blog-agent/internal/compose"
	"github.com/shinji-kodama/blog-agent/internal/config"
	"github.com/shinji-kodama/blog-agent/internal/deploy"
	"github.com/shinji-kodama/blog-agent/internal/gitrepo"
	"github.com/shinji-kodama/blog-agent/internal/model"
)

// ghRunner runs the gh CLI. Tests replace it.
var ghRunner deploy.GHRunner = deploy.ExecGH

func newDeploySecretsCommand() *cobra.Command {
	var (
		repo   string
		sshKey string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Upload deployment secrets and variables to GitHub Actions",
		Long: `Resolve every deployment value and store it in the repository's GitHub
Actions secrets and variables with the gh CLI.

Values come from --env-file first, then the process environment.
--ssh-key reads SSH_PRIVATE_KEY from a file. Every required value must be
present; missing optional values are skipped with a warning.

Catalogue:
` + catalogueHelp(),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sources, err := lookupChain()
			if err != nil {
				return err
			}
			if sshKey != "" {
				data, err := os.ReadFile(expandHome(sshKey))
				if err != nil {
					return model.WrapCLIError(model.ExitConfigNotFound, "failed to read SSH key "+sshKey, err)
				}
				key := config.MapLookup(map[string]string{"SSH_PRIVATE_KEY": string(data)})
				sources = append([]config.LookupFunc{key}, sources...)
			}

			present, skipped, err := deploy.Validate(deploy.Resolve(deploy.Catalogue(), sources...))
			if err != nil {
				return err
			}
			for _, s := range skipped {
				logger.Debug("skipping optional value", zap.String("name", s.Name), zap.String("kind", string(s.Kind)))
			}
			if len(skipped) > 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), warningStyle.Render("Skipping unset optional values: "+strings.Join(deploy.Names(skipped), ", ")))
			}

			if repo == "" {
				repo, err = gitrepo.NewManager(".").GitHubRepo(ctx, gitrepo.DefaultRemote)
				if err != nil {
					return err
				}
			}

			uploader := &deploy.Uploader{
				Repo:   repo,
				DryRun: dryRun,
				Run:    ghRunner,
				Out:    cmd.OutOrStdout(),
				Logger: logger,
			}
			if err := uploader.Upload(ctx, present); err != nil {
				return err
			}

			if !dryRun {
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("Stored %d values in %s", len(present), repo)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "", "GitHub repository owner/name (default: origin remote)")
	cmd.Flags().StringVar(&sshKey, "ssh-key", "", "Read SSH_PRIVATE_KEY from this file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the gh commands with masked values and run nothing")
	return cmd
}

func catalogueHelp() string {
	var b strings.Builder
	for _, s := range deploy.Catalogue() {
		req := "optional"
		if s.Required {
			req = "required"
		}
		fmt.Fprintf(&b, "  %-20s %-8s %-8s %s\n", s.Name, s.Kind, req, s.Description)
	}
	return b.String()
}

func newDeployCheckCommand() *cobra.Command {
	var (
		file string
		dir  string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the compose file against the available configuration",
		Long: `Parse the compose file and report its services, named volumes and the
variables it references. A reference without a default that is neither a
deployment value nor set in the environment is reported as unsatisfied and
fails the check.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadCompose(file, dir)
			if err != nil {
				return err
			}

			sources, err := lookupChain()
			if err != nil {
				return err
			}
			known := deploy.ValueLookup(deploy.Resolve(deploy.Catalogue(), sources...))
			report := f.Check(func(name string) bool {
				if _, ok := known(name); ok {
					return true
				}
				for _, lookup := range sources {
					if _, ok := lookup(name); ok {
						return true
					}
				}
				return false
			})

			if IsJSONOutput() {
				printJSON(cmd, report)
			} else {
				printCheckReport(cmd, f.Path, report)
			}

			if len(report.Unsatisfied) > 0 {
				return model.NewCLIError(model.ExitConfigInvalid,
					"unsatisfied compose variables: "+strings.Join(report.Unsatisfied, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "compose", "", "Compose file (default: discovered in --dir)")
	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to search for the compose file")
	return cmd
}

func printCheckReport(cmd *cobra.Command, path string, r compose.Report) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s (project %s)", path, r.Project)))
	fmt.Fprintf(w, "  Services:   %s\n", joinOrNone(r.Services))
	fmt.Fprintf(w, "  Volumes:    %s\n", joinOrNone(r.Volumes))

	names := make([]string, 0, len(r.References))
	for _, ref := range r.References {
		names = append(names, ref.Name)
	}
	fmt.Fprintf(w, "  Variables:  %s\n", joinOrNone(names))

	if len(r.Unsatisfied) == 0 {
		fmt.Fprintln(w, successStyle.Render("All variables are satisfied."))
		return
	}
	for _, name := range r.Unsatisfied {
		line := "  unsatisfied: " + name
		if deploy.Known(name) {
			line += " (deployment value; see blog-agent deploy secrets --help)"
		}
		fmt.Fprintln(w, warningStyle.Render(line))
	}
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

// loadCompose loads file, or the first default compose file in dir.
func loadCompose(file, dir string) (*compose.File, error) {
	if file == "" {
		found, err := compose.FindFile(dir)
		if err != nil {
			return nil, err
		}
		file = found
	}
	VerboseLog("Using compose file %s", file)
	return compose.Load(file)
}
