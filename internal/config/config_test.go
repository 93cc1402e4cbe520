package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadAgentEnv_Defaults verifies that an empty environment yields the
// documented defaults.
func TestLoadAgentEnv_Defaults(t *testing.T) {
	env := LoadAgentEnv(MapLookup(nil))

	assert.Equal(t, "gemini-2.5-flash", env.Model)
	assert.Equal(t, "queryplanner", env.RepoOwner)
	assert.Equal(t, "blogs", env.RepoName)
	assert.Equal(t, "src/data/blog", env.ContentPath)
	assert.Equal(t, "blog_agent", env.AppName)
	assert.Empty(t, env.GitHubToken)
	assert.Empty(t, env.DatabaseURL)
	assert.False(t, env.LangfuseEnabled())
}

func TestLoadAgentEnv_Overrides(t *testing.T) {
	env := LoadAgentEnv(MapLookup(map[string]string{
		EnvRootAgentModel:    "openrouter/anthropic/claude-sonnet-4",
		EnvGitHubToken:       "ghp_x",
		EnvRepoOwner:         "acme",
		EnvRepoName:          "site",
		EnvContentPath:       "/content/posts/",
		EnvAuthor:            "Ada Lovelace",
		EnvDatabaseURL:       "sqlite:///tmp/a.db",
		EnvLangfusePublicKey: "pk",
		EnvLangfuseSecretKey: "sk",
		EnvGoogleAPIKey:      "   ",
	}))

	assert.Equal(t, "openrouter/anthropic/claude-sonnet-4", env.Model)
	assert.Equal(t, "ghp_x", env.GitHubToken)
	assert.Equal(t, "acme", env.RepoOwner)
	assert.Equal(t, "site", env.RepoName)
	assert.Equal(t, "content/posts", env.ContentPath)
	assert.Equal(t, "Ada Lovelace", env.Author)
	assert.Equal(t, "sqlite:///tmp/a.db", env.DatabaseURL)
	assert.True(t, env.LangfuseEnabled())
	assert.Empty(t, env.GoogleAPIKey, "whitespace-only values count as unset")
}

func TestLoadServerEnv(t *testing.T) {
	tests := []struct {
		name     string
		vars     map[string]string
		wantAddr string
		wantTO   time.Duration
		wantErr  bool
	}{
		{"defaults", nil, "0.0.0.0:8000", 10 * time.Second, false},
		{"custom", map[string]string{EnvHost: "127.0.0.1", EnvPort: "9090", EnvShutdownTimeout: "3s"}, "127.0.0.1:9090", 3 * time.Second, false},
		{"ipv6 host", map[string]string{EnvHost: "::", EnvPort: "8000"}, "[::]:8000", 10 * time.Second, false},
		{"bad port", map[string]string{EnvPort: "http"}, "", 0, true},
		{"port out of range", map[string]string{EnvPort: "70000"}, "", 0, true},
		{"bad timeout", map[string]string{EnvShutdownTimeout: "-1s"}, "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := LoadServerEnv(MapLookup(tt.vars))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, env.Addr())
			assert.Equal(t, tt.wantTO, env.ShutdownTimeout)
		})
	}
}

// TestParseEnvFile covers quoting, comments, export prefixes and values
// that contain "=".
func TestParseEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := `# deployment settings
SERVER_HOST=203.0.113.10
export SERVER_USER=deploy
DATABASE_URL="sqlite:///data/sessions.db"
ROOT_AGENT_MODEL='openrouter/google/gemini-2.5-pro'
TOKEN=abc=def

`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	vars, err := ParseEnvFile(path)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"SERVER_HOST":      "203.0.113.10",
		"SERVER_USER":      "deploy",
		"DATABASE_URL":     "sqlite:///data/sessions.db",
		"ROOT_AGENT_MODEL": "openrouter/google/gemini-2.5-pro",
		"TOKEN":            "abc=def",
	}, vars)
}

func TestParseEnvFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := ParseEnvFile(filepath.Join(dir, "missing.env"))
	assert.True(t, os.IsNotExist(err))

	bad := filepath.Join(dir, "bad.env")
	require.NoError(t, os.WriteFile(bad, []byte("NOT A PAIR\n"), 0o644))
	_, err = ParseEnvFile(bad)
	assert.ErrorContains(t, err, "bad.env:1")
}

// TestLoadEnvFile verifies that variables already present in the process
// environment take precedence over the file.
func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BLOG_TEST_A=file\nBLOG_TEST_B=file\n"), 0o644))

	t.Setenv("BLOG_TEST_A", "shell")
	// Registers cleanup for B; the empty value is removed so the file can set it.
	t.Setenv("BLOG_TEST_B", "")
	require.NoError(t, os.Unsetenv("BLOG_TEST_B"))

	loaded, err := LoadEnvFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"BLOG_TEST_B"}, loaded)
	assert.Equal(t, "shell", os.Getenv("BLOG_TEST_A"))
	assert.Equal(t, "file", os.Getenv("BLOG_TEST_B"))
}
