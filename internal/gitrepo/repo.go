// Package gitrepo provides the Git operations the deploy commands need:
// locating the repository, reading the current branch, resolving the
// GitHub owner/name of a remote, and pushing.
//
// Design decisions:
//   - We shell out to `git` rather than using a Go Git library, so the
//     user's credential helpers and SSH configuration apply to pushes.
//   - All errors from Git commands are wrapped in model.CLIError with
//     ExitGitError to enable proper CLI exit code handling.
package gitrepo

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"strings"

	"github.com/shinji-kodama/blog-agent/internal/model"
)

// DefaultRemote is the remote whose pushes trigger the deploy workflow.
const DefaultRemote = "origin"

// Manager runs git commands against a working tree.
type Manager struct {
	// Dir is the working tree directory passed to git -C.
	Dir string
}

// NewManager returns a Manager for dir.
func NewManager(dir string) *Manager {
	return &Manager{Dir: dir}
}

// Root returns the top-level directory of the working tree.
func (m *Manager) Root(ctx context.Context) (string, error) {
	out, err := m.runGit(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CurrentBranch returns the short name of the checked-out branch.
// A detached HEAD is an error, since there is nothing to push.
func (m *Manager) CurrentBranch(ctx context.Context) (string, error) {
	out, err := m.runGit(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	branch := strings.TrimSpace(out)
	if branch == "HEAD" {
		return "", model.NewCLIError(model.ExitGitError, "HEAD is detached; check out a branch first")
	}
	return branch, nil
}

// RemoteURL returns the fetch URL of a remote.
func (m *Manager) RemoteURL(ctx context.Context, remote string) (string, error) {
	out, err := m.runGit(ctx, "remote", "get-url", remote)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// GitHubRepo returns "owner/name" for a remote hosted on GitHub.
func (m *Manager) GitHubRepo(ctx context.Context, remote string) (string, error) {
	raw, err := m.RemoteURL(ctx, remote)
	if err != nil {
		return "", err
	}
	owner, name, err := ParseGitHubURL(raw)
	if err != nil {
		return "", model.WrapCLIError(model.ExitGitError, fmt.Sprintf("remote %q is not a GitHub repository", remote), err)
	}
	return owner + "/" + name, nil
}

// Push pushes branch to remote and sets its upstream.
func (m *Manager) Push(ctx context.Context, remote, branch string) error {
	_, err := m.runGit(ctx, "push", "--set-upstream", remote, branch)
	return err
}

// ParseGitHubURL extracts owner and repository name from the remote URL
// forms GitHub hands out:
//
//	https://github.com/owner/name.git
//	git@github.com:owner/name.git
//	ssh://git@github.com/owner/name
func ParseGitHubURL(raw string) (owner, name string, err error) {
	var path string
	switch {
	case strings.HasPrefix(raw, "git@github.com:"):
		path = strings.TrimPrefix(raw, "git@github.com:")
	default:
		u, perr := url.Parse(raw)
		if perr != nil {
			return "", "", perr
		}
		if u.Hostname() != "github.com" {
			return "", "", fmt.Errorf("host %q is not github.com", u.Hostname())
		}
		path = strings.TrimPrefix(u.Path, "/")
	}

	path = strings.TrimSuffix(strings.TrimSuffix(path, "/"), ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("expected owner/name in %q", raw)
	}
	return parts[0], parts[1], nil
}

// runGit executes git -C Dir with args and returns stdout. On failure the
// trimmed stderr is included in the error message.
func (m *Manager) runGit(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", m.Dir}, args...)

	// #nosec G204 -- args are constructed internally
	cmd := exec.CommandContext(ctx, "git", fullArgs...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		message := fmt.Sprintf("git %s failed", strings.Join(args, " "))
		if s := strings.TrimSpace(stderr.String()); s != "" {
			message = fmt.Sprintf("%s: %s", message, s)
		}
		return "", model.WrapCLIError(model.ExitGitError, message, err)
	}
	return stdout.String(), nil
}
