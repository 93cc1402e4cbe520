package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/blog-agent/internal/model"
	"github.com/shinji-kodama/blog-agent/internal/scaffold"
)

func writeTemplate(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"pyproject.toml":        "[project]\nname = \"agent-template\"\nversion = \"1.4.0\"\n",
		"README.md":             "# agent-template\n",
		"Makefile":              "test:\n\tpytest src/agent\n",
		"src/agent/__init__.py": "\"\"\"agent package by queryplanner.\"\"\"\n",
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

type lockCall struct {
	dir  string
	name string
	args []string
}

func stubLockRunner(t *testing.T) *[]lockCall {
	t.Helper()
	var calls []lockCall
	prev := lockRunner
	lockRunner = func(_ context.Context, dir, name string, args ...string) error {
		calls = append(calls, lockCall{dir: dir, name: name, args: args})
		return nil
	}
	t.Cleanup(func() { lockRunner = prev })
	return &calls
}

func initArgs(root string, extra ...string) []string {
	return append([]string{"init", "--dir", root, "--package", "blog_writer", "--repo", "blog-writer", "--owner", "acme"}, extra...)
}

func TestInit_DryRun(t *testing.T) {
	root := writeTemplate(t)
	calls := stubLockRunner(t)

	out, err := runCLI(t, append([]string{"--json"}, initArgs(root, "--dry-run")...)...)
	require.NoError(t, err)

	var result struct {
		DryRun  bool              `json:"dryRun"`
		Actions []scaffold.Action `json:"actions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.DryRun)

	kinds := make(map[scaffold.ActionKind]int)
	for _, a := range result.Actions {
		kinds[a.Kind]++
	}
	assert.Equal(t, 1, kinds[scaffold.ActionRenameDir])
	assert.Equal(t, 1, kinds[scaffold.ActionRegenerateLock])
	assert.Positive(t, kinds[scaffold.ActionSkip], "missing template files are skipped")

	readme, err := os.ReadFile(filepath.Join(root, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# agent-template\n", string(readme))
	assert.DirExists(t, filepath.Join(root, "src", "agent"))
	assert.Empty(t, *calls)
}

func TestInit_Apply(t *testing.T) {
	root := writeTemplate(t)
	calls := stubLockRunner(t)

	out, err := runCLI(t, initArgs(root, "--yes")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Applied")

	readme, err := os.ReadFile(filepath.Join(root, "README.md"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(readme), "# blog-writer\n"))

	assert.NoDirExists(t, filepath.Join(root, "src", "agent"))
	pkg, err := os.ReadFile(filepath.Join(root, "src", "blog_writer", "__init__.py"))
	require.NoError(t, err)
	assert.Equal(t, "\"\"\"blog_writer package by acme.\"\"\"\n", string(pkg))

	require.Len(t, *calls, 1)
	assert.Equal(t, "uv", (*calls)[0].name)
	assert.Equal(t, []string{"lock"}, (*calls)[0].args)
}

func TestInit_DeclinedConfirmation(t *testing.T) {
	root := writeTemplate(t)
	calls := stubLockRunner(t)
	asked := stubConfirm(t, false)

	_, err := runCLI(t, initArgs(root)...)
	assert.Equal(t, model.ExitUserCancelled, exitCode(t, err))
	assert.Len(t, *asked, 1)
	assert.DirExists(t, filepath.Join(root, "src", "agent"))
	assert.Empty(t, *calls)
}

func TestInit_InvalidPackageName(t *testing.T) {
	root := writeTemplate(t)
	stubLockRunner(t)

	_, err := runCLI(t, "init", "--dir", root, "--package", "Blog-Writer", "--repo", "blog-writer", "--owner", "acme", "--yes")
	assert.Equal(t, model.ExitGeneralError, exitCode(t, err))
	assert.DirExists(t, filepath.Join(root, "src", "agent"))
}
