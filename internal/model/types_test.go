package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestToolStatus_IsValid checks that only defined status values pass validation.
func TestToolStatus_IsValid(t *testing.T) {
	assert.True(t, ToolSuccess.IsValid())
	assert.True(t, ToolError.IsValid())
	assert.False(t, ToolStatus("pending").IsValid())
	assert.False(t, ToolStatus("").IsValid())
}

// TestParseToolStatus verifies string-to-status conversion,
// including case normalization and error cases.
func TestParseToolStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected ToolStatus
		hasError bool
	}{
		{"success", ToolSuccess, false},
		{"error", ToolError, false},
		{"SUCCESS", ToolSuccess, false},
		{"unknown", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseToolStatus(tt.input)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

func TestValidateSlug(t *testing.T) {
	tests := []struct {
		slug    string
		wantErr bool
	}{
		{"my-awesome-post", false},
		{"post1", false},
		{"a", false},
		{"", true},
		{"Upper-Case", true},
		{"double--hyphen", true},
		{"-leading", true},
		{"trailing-", true},
		{"with space", true},
		{"blog/slug", true},
	}

	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			err := ValidateSlug(tt.slug)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"My Awesome Post", "my-awesome-post"},
		{"  Go 1.25: What's New?  ", "go-1-25-what-s-new"},
		{"already-a-slug", "already-a-slug"},
		{"!!!", "post"},
		{"", "post"},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got := Slugify(tt.title)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, ValidateSlug(got))
		})
	}
}

// TestDefaultPublishRequest verifies the publish conventions the publisher
// agent is instructed to follow.
func TestDefaultPublishRequest(t *testing.T) {
	req := DefaultPublishRequest(PostMeta{Title: "Hello World", Slug: "hello-world"})

	assert.Equal(t, "blog/hello-world", req.BranchName)
	assert.Equal(t, "hello-world.md", req.FileName)
	assert.Equal(t, "Add blog: Hello World", req.CommitMessage)
	assert.Equal(t, "Blog: Hello World", req.PRTitle)
	assert.Equal(t, "This PR adds a new blog post: Hello World", req.PRBody)
}

func TestContainerInfo_IsRunning(t *testing.T) {
	assert.True(t, ContainerInfo{Status: "running"}.IsRunning())
	assert.False(t, ContainerInfo{Status: "exited"}.IsRunning())
}

// TestCLIError verifies message formatting and unwrap behavior.
func TestCLIError(t *testing.T) {
	t.Run("without underlying error", func(t *testing.T) {
		err := NewCLIError(ExitNotFound, "session not found")
		assert.Equal(t, "session not found", err.Error())
		assert.Equal(t, ExitNotFound, err.Code)
		assert.Nil(t, err.Unwrap())
	})

	t.Run("with underlying error", func(t *testing.T) {
		inner := errors.New("connection refused")
		err := WrapCLIError(ExitDockerNotRunning, "docker unavailable", inner)
		assert.Equal(t, "docker unavailable: connection refused", err.Error())
		assert.True(t, errors.Is(err, inner))
	})

	t.Run("errors.As finds CLIError through wrapping", func(t *testing.T) {
		wrapped := errors.Join(errors.New("context"), NewCLIError(ExitConfigInvalid, "missing secrets"))
		var cliErr *CLIError
		require.True(t, errors.As(wrapped, &cliErr))
		assert.Equal(t, ExitConfigInvalid, cliErr.Code)
	})
}
