// Package github publishes a blog post to a GitHub repository through the
// REST API: it creates a branch, commits the post file, and opens a pull
// request. Every step is idempotent so a publish can be retried.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shinji-kodama/blog-agent/internal/logging"
	"github.com/shinji-kodama/blog-agent/internal/model"
)

// DefaultBaseURL is the public GitHub API endpoint.
const DefaultBaseURL = "https://api.github.com"

// NetworkErrorMessage is reported when GitHub cannot be reached at all.
const NetworkErrorMessage = "Network error while communicating with GitHub"

// GitHubError describes a failed publish step.
type GitHubError struct {
	Message string
	// StatusCode is the HTTP status of the failing call, or 0 when no
	// response was received.
	StatusCode int
	// Details is the raw response body or transport error text.
	Details string
	Err     error
}

func (e *GitHubError) Error() string {
	return e.Message
}

func (e *GitHubError) Unwrap() error {
	return e.Err
}

// IsNetwork reports whether the error came from the transport rather than
// an HTTP response.
func (e *GitHubError) IsNetwork() bool {
	return e.StatusCode == 0 && e.Err != nil
}

// Repo identifies the publishing target.
type Repo struct {
	Owner string
	Name  string
	// ContentPath is the directory that receives post files, without
	// leading or trailing slashes.
	ContentPath string
}

// FilePath returns the repository path for fileName.
func (r Repo) FilePath(fileName string) string {
	if r.ContentPath == "" {
		return fileName
	}
	return r.ContentPath + "/" + fileName
}

// Client is a minimal GitHub REST client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root (GitHub Enterprise or
// a test server).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// NewClient creates a client authenticated with token.
func NewClient(token string, logger *zap.Logger, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, &GitHubError{Message: "BLOG_GITHUB_TOKEN not configured"}
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type apiResponse struct {
	status int
	body   []byte
}

func (r *apiResponse) text() string { return string(r.body) }

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) (*apiResponse, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("github request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, &GitHubError{Message: NetworkErrorMessage, Details: err.Error(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, &GitHubError{Message: NetworkErrorMessage, Details: err.Error(), Err: err}
	}

	c.logger.Debug("github request",
		zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode))
	return &apiResponse{status: resp.StatusCode, body: data}, nil
}

func stepError(message string, resp *apiResponse) *GitHubError {
	return &GitHubError{
		Message:    fmt.Sprintf("%s: %d", message, resp.status),
		StatusCode: resp.status,
		Details:    resp.text(),
	}
}

// PublishFile commits content to repo on branchName and opens a pull
// request against the default branch.
//
// Step 1: resolve the default branch.
// Step 2: read the default branch head SHA.
// Step 3: create the branch (an existing branch is reused).
// Step 4: look up an existing file SHA so the commit becomes an update.
// Step 5: create or update the file.
// Step 6: open the pull request (an existing open PR is reused).
func (c *Client) PublishFile(ctx context.Context, repo Repo, content []byte, req model.PublishRequest) (*model.PublishResult, error) {
	base := fmt.Sprintf("/repos/%s/%s", url.PathEscape(repo.Owner), url.PathEscape(repo.Name))
	filePath := repo.FilePath(req.FileName)

	// Step 1: the repository metadata names the default branch; fall back
	// to "main" when the field is missing.
	resp, err := c.do(ctx, http.MethodGet, base, nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, stepError("Failed to fetch repo info", resp)
	}
	var repoInfo struct {
		DefaultBranch string `json:"default_branch"`
	}
	_ = json.Unmarshal(resp.body, &repoInfo)
	defaultBranch := repoInfo.DefaultBranch
	if defaultBranch == "" {
		defaultBranch = "main"
	}

	// Step 2: the new branch is cut from the current head of the default
	// branch.
	resp, err = c.do(ctx, http.MethodGet, base+"/git/ref/heads/"+defaultBranch, nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, stepError("Failed to get branch ref", resp)
	}
	var ref struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	_ = json.Unmarshal(resp.body, &ref)
	if ref.Object.SHA == "" {
		return nil, &GitHubError{Message: "Could not get base SHA", StatusCode: resp.status, Details: resp.text()}
	}

	// Step 3: create the branch. GitHub answers 422 "already exists" when a
	// previous attempt got this far, and that branch is reused.
	resp, err = c.do(ctx, http.MethodPost, base+"/git/refs", nil, map[string]string{
		"ref": "refs/heads/" + req.BranchName,
		"sha": ref.Object.SHA,
	})
	if err != nil {
		return nil, err
	}
	switch {
	case resp.status == http.StatusUnprocessableEntity && strings.Contains(resp.text(), "already exists"):
		c.logger.Info("branch already exists, reusing", zap.String("branch", req.BranchName))
	case resp.status != http.StatusCreated:
		return nil, stepError("Failed to create branch", resp)
	}

	// Step 4: a file already on the branch must be updated by SHA, so look
	// it up. Any status other than 200 means the commit creates it.
	var fileSHA string
	resp, err = c.do(ctx, http.MethodGet, base+"/contents/"+filePath, url.Values{"ref": {req.BranchName}}, nil)
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusOK {
		var existing struct {
			SHA string `json:"sha"`
		}
		_ = json.Unmarshal(resp.body, &existing)
		fileSHA = existing.SHA
	}

	// Step 5: commit the content, base64 encoded as the contents API expects.
	fileData := map[string]string{
		"message": req.CommitMessage,
		"content": base64.StdEncoding.EncodeToString(content),
		"branch":  req.BranchName,
	}
	if fileSHA != "" {
		fileData["sha"] = fileSHA
	}
	resp, err = c.do(ctx, http.MethodPut, base+"/contents/"+filePath, nil, fileData)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK && resp.status != http.StatusCreated {
		return nil, stepError("Failed to create file", resp)
	}

	// Step 6: open the pull request. A 422 for an existing PR is resolved by
	// listing the open PRs for the branch.
	prURL, err := c.openPullRequest(ctx, base, repo.Owner, defaultBranch, req)
	if err != nil {
		return nil, err
	}

	c.logger.Info("published blog post", zap.String("pr_url", prURL), zap.String("file_path", filePath))
	return &model.PublishResult{PRURL: prURL, Branch: req.BranchName, FilePath: filePath}, nil
}

func (c *Client) openPullRequest(ctx context.Context, base, owner, defaultBranch string, req model.PublishRequest) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, base+"/pulls", nil, map[string]string{
		"title": req.PRTitle,
		"body":  req.PRBody,
		"head":  req.BranchName,
		"base":  defaultBranch,
	})
	if err != nil {
		return "", err
	}

	var pr struct {
		HTMLURL string `json:"html_url"`
	}
	switch {
	case resp.status == http.StatusCreated:
		_ = json.Unmarshal(resp.body, &pr)
		return pr.HTMLURL, nil

	case resp.status == http.StatusUnprocessableEntity && strings.Contains(resp.text(), "A pull request already exists"):
		list, err := c.do(ctx, http.MethodGet, base+"/pulls", url.Values{
			"head":  {owner + ":" + req.BranchName},
			"state": {"open"},
		}, nil)
		if err != nil {
			return "", err
		}
		var open []struct {
			HTMLURL string `json:"html_url"`
		}
		if list.status == http.StatusOK {
			_ = json.Unmarshal(list.body, &open)
		}
		if len(open) == 0 {
			return "", &GitHubError{
				Message:    "PR already exists but could not find its URL",
				StatusCode: resp.status,
				Details:    resp.text(),
			}
		}
		c.logger.Info("found existing pull request", zap.String("pr_url", open[0].HTMLURL))
		return open[0].HTMLURL, nil

	default:
		return "", stepError("Failed to create PR", resp)
	}
}
