package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shinji-kodama/blog-agent/internal/agent"
	"github.com/shinji-kodama/blog-agent/internal/config"
	"github.com/shinji-kodama/blog-agent/internal/llm"
	"github.com/shinji-kodama/blog-agent/internal/model"
	"github.com/shinji-kodama/blog-agent/internal/store"
)

type writeFlags struct {
	session string
}

// NewWriteCommand creates the "write" command, which runs the writer and
// publisher agents once for a topic.
func NewWriteCommand() *cobra.Command {
	flags := &writeFlags{}

	cmd := &cobra.Command{
		Use:   "write <topic...>",
		Short: "Draft a blog post on a topic and publish it as a pull request",
		Long: `Run the blog pipeline once: the writer agent drafts the post and saves it,
then the publisher agent opens a pull request against the blog repository.

Configuration is read from the environment (see --env-file):
  ROOT_AGENT_MODEL, GOOGLE_API_KEY or OPENROUTER_API_KEY, BLOG_GITHUB_TOKEN,
  BLOG_REPO_OWNER, BLOG_REPO_NAME, BLOG_CONTENT_PATH, DATABASE_URL

Examples:
  blog-agent write "Why Go interfaces are satisfied implicitly"
  blog-agent write --session 3f2a... "Make the intro shorter"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd, strings.Join(args, " "), flags)
		},
	}

	cmd.Flags().StringVar(&flags.session, "session", "", "Continue an existing session")
	return cmd
}

// agentDeps are the pieces every agent-backed command opens.
type agentDeps struct {
	env   config.AgentEnv
	store store.Store
}

func openAgentDeps() (*agentDeps, error) {
	env := config.LoadAgentEnv(config.OSLookup)
	st, err := store.Open(env.DatabaseURL)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigInvalid, "failed to open session store", err)
	}
	VerboseLog("Session store ready (database configured: %t)", env.DatabaseURL != "")
	return &agentDeps{env: env, store: st}, nil
}

func newBlogRunner(ctx context.Context, deps *agentDeps) (*agent.Runner, error) {
	m, err := llm.New(ctx, deps.env.Model, llm.Keys{
		GoogleAPIKey:     deps.env.GoogleAPIKey,
		OpenRouterAPIKey: deps.env.OpenRouterAPIKey,
	}, logger)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigInvalid, "failed to configure model", err)
	}
	VerboseLog("Using model %s", m.Name())
	if deps.env.LangfuseEnabled() {
		logger.Debug("langfuse credentials present", zap.String("host", deps.env.LangfuseHost))
	}
	return agent.NewBlogRunner(m, deps.store, deps.env, logger)
}

func runWrite(cmd *cobra.Command, topic string, flags *writeFlags) error {
	ctx := cmd.Context()

	deps, err := openAgentDeps()
	if err != nil {
		return err
	}
	defer func() { _ = deps.store.Close() }()

	runner, err := newBlogRunner(ctx, deps)
	if err != nil {
		return err
	}

	result, err := runner.Run(ctx, flags.session, topic)
	if err != nil {
		if errors.Is(err, agent.ErrMaxTurns) {
			return model.WrapCLIError(model.ExitGeneralError, "the agent did not finish", err)
		}
		return err
	}

	printWriteResult(cmd, result)
	return nil
}

func printWriteResult(cmd *cobra.Command, result *agent.RunResult) {
	if IsJSONOutput() {
		printJSON(cmd, result)
		return
	}

	out := cmd.OutOrStdout()
	for _, o := range result.Outputs {
		fmt.Fprintf(out, "%s\n%s\n\n", titleStyle.Render("["+o.Agent+"]"), strings.TrimSpace(o.Text))
	}
	if title := result.State["title"]; title != "" {
		fmt.Fprintf(out, "Title:   %s\n", title)
	}
	fmt.Fprintf(out, "Session: %s\n", result.SessionID)
	fmt.Fprintln(out, hintStyle.Render(fmt.Sprintf("Tokens:  %d in / %d out", result.Usage.PromptTokens, result.Usage.CompletionTokens)))
}
