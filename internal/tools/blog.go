package tools

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/shinji-kodama/blog-agent/internal/github"
	"github.com/shinji-kodama/blog-agent/internal/model"
)

// ArtifactFilename is where the writer stores the finished draft.
const ArtifactFilename = "blog_content.md"

// Session state keys shared by the writer and the publisher.
const (
	StateTitle = "title"
	StateSlug  = "slug"
)

// Tool names as declared to the model.
const (
	SaveBlogContentName = "save_blog_content"
	PublishBlogName     = "publish_blog_to_github"
)

// SaveBlogContent stores the finished draft as an artifact and records its
// title and slug in session state.
type SaveBlogContent struct {
	logger *zap.Logger
}

// NewSaveBlogContent creates the writer's save tool.
func NewSaveBlogContent(logger *zap.Logger) *SaveBlogContent {
	return &SaveBlogContent{logger: logger}
}

// Name implements Tool.
func (t *SaveBlogContent) Name() string { return SaveBlogContentName }

// Description implements Tool.
func (t *SaveBlogContent) Description() string {
	return "Save the complete blog post (markdown with YAML frontmatter) for later publishing. " +
		"The content is stored exactly as provided."
}

// Schema requires content, title and slug, and rejects any other key.
func (t *SaveBlogContent) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": stringProp("The complete markdown for the blog post including YAML frontmatter"),
			"title":   stringProp("The title of the blog post"),
			"slug":    stringProp(`The URL slug for the blog post (e.g. "my-awesome-post")`),
		},
		"required":             []string{"content", "title", "slug"},
		"additionalProperties": false,
	}
}

// Run saves content as a new version of ArtifactFilename, then records
// the title and slug in session state. The reported version lets the
// writer tell a revision from the first draft.
func (t *SaveBlogContent) Run(ctx context.Context, tc *Context, args map[string]any) Result {
	content := stringArg(args, "content")
	title := stringArg(args, "title")
	slug := stringArg(args, "slug")

	version, err := tc.SaveArtifact(ctx, ArtifactFilename, []byte(content))
	if err == nil {
		err = tc.SetState(ctx, map[string]string{StateTitle: title, StateSlug: slug})
	}
	if err != nil {
		t.logger.Error("failed to save blog content", zap.String("session", tc.SessionID), zap.Error(err))
		return ErrorResult(fmt.Sprintf("Failed to save blog content: %v", err))
	}

	t.logger.Info("saved blog content",
		zap.String("session", tc.SessionID), zap.Int("version", version), zap.Int("bytes", len(content)))

	return Result{
		"status":  model.ToolSuccess.String(),
		"message": fmt.Sprintf("Blog content saved successfully (version %d)", version),
		"title":   title,
		"slug":    slug,
	}
}

// Publisher commits a post and opens a pull request. *github.Client
// implements it.
type Publisher interface {
	PublishFile(ctx context.Context, repo github.Repo, content []byte, req model.PublishRequest) (*model.PublishResult, error)
}

// PublishBlog publishes the saved draft to GitHub. It reads the draft from
// the artifact store, so the publishing model never handles the content.
type PublishBlog struct {
	repo         github.Repo
	token        string
	logger       *zap.Logger
	newPublisher func(token string) (Publisher, error)
}

// NewPublishBlog creates the publisher's tool. An empty token is accepted;
// the tool reports it when called.
func NewPublishBlog(repo github.Repo, token string, logger *zap.Logger, opts ...github.Option) *PublishBlog {
	return &PublishBlog{
		repo:   repo,
		token:  token,
		logger: logger,
		newPublisher: func(token string) (Publisher, error) {
			return github.NewClient(token, logger, opts...)
		},
	}
}

// Name implements Tool.
func (t *PublishBlog) Name() string { return PublishBlogName }

// Description implements Tool.
func (t *PublishBlog) Description() string {
	return "Publish the saved blog post by creating a branch, committing the file under the " +
		"configured content path, and opening a pull request."
}

// Schema describes the publish metadata. file_name must be a bare
// markdown file name; the content path is prepended by the client.
func (t *PublishBlog) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"branch_name":    stringProp(`Name for the new branch (e.g. "blog/new-post-slug")`),
			"file_name":      map[string]any{"type": "string", "pattern": `^[^/\\]+\.md$`, "description": `Markdown file name (e.g. "my-post.md")`},
			"commit_message": stringProp("Commit message for the change"),
			"pr_title":       stringProp("Title for the pull request"),
			"pr_body":        map[string]any{"type": "string", "description": "Body of the pull request"},
		},
		"required": []string{"branch_name", "file_name", "commit_message", "pr_title", "pr_body"},
	}
}

// Run loads the latest saved draft and hands it to Publish. A missing
// draft or token becomes an error result before any request is made.
func (t *PublishBlog) Run(ctx context.Context, tc *Context, args map[string]any) Result {
	req := model.PublishRequest{
		BranchName:    stringArg(args, "branch_name"),
		FileName:      stringArg(args, "file_name"),
		CommitMessage: stringArg(args, "commit_message"),
		PRTitle:       stringArg(args, "pr_title"),
		PRBody:        stringArg(args, "pr_body"),
	}

	content, found, err := tc.LoadArtifact(ctx, ArtifactFilename)
	if err != nil {
		t.logger.Error("failed to load blog content", zap.Error(err))
		return Result{"status": model.ToolError.String(), "message": "An unexpected error occurred", "details": err.Error()}
	}
	if !found {
		return ErrorResult("No blog content found. Writer must save first.")
	}
	t.logger.Info("loaded blog content", zap.Int("bytes", len(content)))

	return t.Publish(ctx, content, req)
}

// Publish runs the GitHub flow for content. It is used by the tool and by
// the deterministic publish command.
func (t *PublishBlog) Publish(ctx context.Context, content []byte, req model.PublishRequest) Result {
	publisher, err := t.newPublisher(t.token)
	if err != nil {
		return errorFrom(err)
	}

	result, err := publisher.PublishFile(ctx, t.repo, content, req)
	if err != nil {
		t.logger.Error("publish failed", zap.String("branch", req.BranchName), zap.Error(err))
		return errorFrom(err)
	}

	return Result{
		"status":    model.ToolSuccess.String(),
		"message":   "Blog post published successfully",
		"pr_url":    result.PRURL,
		"branch":    result.Branch,
		"file_path": result.FilePath,
	}
}

func errorFrom(err error) Result {
	var ghErr *github.GitHubError
	if errors.As(err, &ghErr) {
		r := ErrorResult(ghErr.Message)
		if ghErr.Details != "" {
			r["details"] = ghErr.Details
		}
		return r
	}
	return Result{"status": model.ToolError.String(), "message": "An unexpected error occurred", "details": err.Error()}
}
