package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shinji-kodama/blog-agent/internal/github"
	"github.com/shinji-kodama/blog-agent/internal/model"
	"github.com/shinji-kodama/blog-agent/internal/store"
	"github.com/shinji-kodama/blog-agent/internal/tools"
)

type publishFlags struct {
	session string
	version int
	branch  string
}

// NewPublishCommand creates the "publish" command. It publishes a draft
// already saved in a session without involving a model, using the same
// conventions the publisher agent follows.
func NewPublishCommand() *cobra.Command {
	flags := &publishFlags{}

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a saved draft as a pull request without running the agents",
		Long: `Publish the draft saved by the writer agent in a session.

The branch is "blog/<slug>" and the file "<slug>.md" under BLOG_CONTENT_PATH,
with title, commit message and pull request text derived from the saved title.
Re-running is safe: an existing branch or pull request is reused.

Examples:
  blog-agent publish --session 3f2a...
  blog-agent publish --session 3f2a... --version 0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.session, "session", "", "Session holding the saved draft (required)")
	cmd.Flags().IntVar(&flags.version, "version", store.LatestVersion, "Draft version to publish (default: latest)")
	cmd.Flags().StringVar(&flags.branch, "branch", "", "Override the branch name")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}

func runPublish(cmd *cobra.Command, flags *publishFlags) error {
	ctx := cmd.Context()

	deps, err := openAgentDeps()
	if err != nil {
		return err
	}
	defer func() { _ = deps.store.Close() }()

	sess, err := deps.store.GetSession(ctx, flags.session)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.NewCLIError(model.ExitNotFound, fmt.Sprintf("session %q not found", flags.session))
		}
		return err
	}

	artifact, err := deps.store.LoadArtifact(ctx, sess.ID, tools.ArtifactFilename, flags.version)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.NewCLIError(model.ExitNotFound, "No blog content found. Writer must save first.")
		}
		return err
	}

	meta := model.PostMeta{Title: sess.State[tools.StateTitle], Slug: sess.State[tools.StateSlug]}
	if meta.Title == "" {
		return model.NewCLIError(model.ExitNotFound, "session state has no title; the writer must save first")
	}
	if meta.Slug == "" {
		meta.Slug = model.Slugify(meta.Title)
	}
	if err := model.ValidateSlug(meta.Slug); err != nil {
		return model.WrapCLIError(model.ExitConfigInvalid, "saved slug cannot be published", err)
	}

	req := model.DefaultPublishRequest(meta)
	if flags.branch != "" {
		req.BranchName = flags.branch
	}
	logger.Info("publishing draft",
		zap.String("session", sess.ID), zap.Int("version", artifact.Version), zap.String("branch", req.BranchName))

	env := deps.env
	repo := github.Repo{Owner: env.RepoOwner, Name: env.RepoName, ContentPath: env.ContentPath}
	result := tools.NewPublishBlog(repo, env.GitHubToken, logger).Publish(ctx, artifact.Data, req)

	if result.Status() != model.ToolSuccess {
		message := result.Message()
		if details, ok := result["details"].(string); ok && details != "" {
			return model.WrapCLIError(model.ExitGeneralError, message, errors.New(details))
		}
		return model.NewCLIError(model.ExitGeneralError, message)
	}

	printPublishResult(cmd, result)
	return nil
}

func printPublishResult(cmd *cobra.Command, result tools.Result) {
	if IsJSONOutput() {
		printJSON(cmd, result)
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, successStyle.Render("Blog post published successfully"))
	fmt.Fprintf(out, "  Pull request: %v\n", result["pr_url"])
	fmt.Fprintf(out, "  Branch:       %v\n", result["branch"])
	fmt.Fprintf(out, "  File:         %v\n", result["file_path"])
}
