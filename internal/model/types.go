package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ToolStatus is the outcome reported by an agent tool back to the model.
type ToolStatus string

const (
	// ToolSuccess indicates the tool completed its work.
	ToolSuccess ToolStatus = "success"

	// ToolError indicates the tool failed. The result message explains why,
	// and the model is expected to relay it rather than retry blindly.
	ToolError ToolStatus = "error"
)

// String returns the string representation of ToolStatus.
func (s ToolStatus) String() string {
	return string(s)
}

// IsValid checks whether the ToolStatus value is one of the predefined states.
func (s ToolStatus) IsValid() bool {
	switch s {
	case ToolSuccess, ToolError:
		return true
	default:
		return false
	}
}

// ParseToolStatus converts a string to a ToolStatus.
// Returns an error if the string does not match any valid status.
func ParseToolStatus(s string) (ToolStatus, error) {
	status := ToolStatus(strings.ToLower(s))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid tool status: %q (valid: success, error)", s)
	}
	return status, nil
}

// PostMeta is the metadata the writer agent records next to a saved draft.
// The publisher only ever sees this metadata, never the draft body.
type PostMeta struct {
	// Title is the human-readable title of the post.
	Title string `json:"title"`

	// Slug is the URL-friendly identifier (e.g., "my-awesome-post").
	Slug string `json:"slug"`
}

// slugRegex validates post slugs: lowercase alphanumerics separated by
// single hyphens.
var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidateSlug checks that a slug is safe to use in a branch name and a file name.
func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("slug must not be empty")
	}
	if !slugRegex.MatchString(slug) {
		return fmt.Errorf("invalid slug %q: use lowercase letters, digits and single hyphens", slug)
	}
	return nil
}

// Slugify converts an arbitrary title into a slug accepted by ValidateSlug.
// Returns "post" when nothing usable remains.
func Slugify(title string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(title) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "post"
	}
	return slug
}

// PublishRequest describes where and how a saved draft is published.
// Field names mirror the publish_blog_to_github tool arguments.
type PublishRequest struct {
	BranchName    string `json:"branch_name"`
	FileName      string `json:"file_name"`
	CommitMessage string `json:"commit_message"`
	PRTitle       string `json:"pr_title"`
	PRBody        string `json:"pr_body"`
}

// DefaultPublishRequest builds the conventional publish request for a post:
// branch "blog/<slug>", file "<slug>.md", and titles derived from the post title.
func DefaultPublishRequest(meta PostMeta) PublishRequest {
	return PublishRequest{
		BranchName:    "blog/" + meta.Slug,
		FileName:      meta.Slug + ".md",
		CommitMessage: "Add blog: " + meta.Title,
		PRTitle:       "Blog: " + meta.Title,
		PRBody:        "This PR adds a new blog post: " + meta.Title,
	}
}

// PublishResult is the outcome of a successful publish.
type PublishResult struct {
	// PRURL is the html_url of the created (or already existing) pull request.
	PRURL string `json:"pr_url"`

	// Branch is the branch the file was committed to.
	Branch string `json:"branch"`

	// FilePath is the repository path of the committed file.
	FilePath string `json:"file_path"`
}

// ContainerInfo holds runtime information about a Docker container
// belonging to the deployed compose project.
type ContainerInfo struct {
	// ContainerID is the unique Docker container identifier.
	ContainerID string `json:"containerId"`

	// ContainerName is the human-readable Docker container name.
	ContainerName string `json:"containerName"`

	// ServiceName is the Docker Compose service name, if applicable.
	ServiceName string `json:"serviceName,omitempty"`

	// Image is the image reference the container was created from.
	Image string `json:"image,omitempty"`

	// Status is the Docker container state (e.g., "running", "exited").
	Status string `json:"status"`

	// Labels is the full set of Docker labels on the container.
	Labels map[string]string `json:"labels,omitempty"`

	// CreatedAt is when Docker created the container.
	CreatedAt time.Time `json:"createdAt"`
}

// IsRunning reports whether the container state is "running".
func (c ContainerInfo) IsRunning() bool {
	return c.Status == "running"
}

// ExitCode defines standard CLI exit codes.
// These codes allow scripts and CI systems to programmatically determine
// the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigNotFound indicates a referenced file (env file, compose
	// file, template manifest) was not found.
	ExitConfigNotFound ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 3

	// ExitPortUnavailable indicates the server port is already in use.
	ExitPortUnavailable ExitCode = 4

	// ExitGitError indicates a Git operation failed.
	ExitGitError ExitCode = 5

	// ExitNotFound indicates the requested session, artifact or volume
	// does not exist.
	ExitNotFound ExitCode = 6

	// ExitUserCancelled indicates the user cancelled an interactive prompt.
	ExitUserCancelled ExitCode = 7

	// ExitConfigInvalid indicates required configuration is missing or malformed.
	ExitConfigInvalid ExitCode = 8
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
