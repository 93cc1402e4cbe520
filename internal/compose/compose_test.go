package compose

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/blog-agent/internal/model"
)

const testCompose = `
# ${COMMENTED_OUT} must not be reported
services:
  app:
    image: ghcr.io/${GITHUB_REPOSITORY:-queryplanner/blog-agent}:latest
    env_file: .env
    environment:
      DATABASE_URL: ${DATABASE_URL}
      ROOT_AGENT_MODEL: ${ROOT_AGENT_MODEL:-gemini-2.5-flash}
      OPENROUTER_API_KEY: $OPENROUTER_API_KEY
      PRICE: "$$5"
    ports:
      - "8000:8000"
    volumes:
      - agent_data:/app/data
  db:
    image: postgres:16
    environment:
      POSTGRES_PASSWORD: ${POSTGRES_PASSWORD:?set a database password}
      POSTGRES_USER: ${POSTGRES_USER:-postgres}
volumes:
  agent_data:
  pg_data:
    name: blog_pg_data
`

func writeCompose(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "docker-compose.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Blog-Agent")
	require.NoError(t, os.Mkdir(dir, 0o755))
	f, err := Load(writeCompose(t, dir, testCompose))
	require.NoError(t, err)

	assert.Equal(t, []string{"app", "db"}, f.ServiceNames())
	assert.Equal(t, []string{"agent_data", "pg_data"}, f.VolumeKeys())
	assert.Equal(t, "blog-agent", f.ProjectName())
	assert.Equal(t, "ghcr.io/${GITHUB_REPOSITORY:-queryplanner/blog-agent}:latest", f.Services["app"].Image)

	assert.Equal(t, []VarRef{
		{Name: "DATABASE_URL"},
		{Name: "GITHUB_REPOSITORY", HasDefault: true},
		{Name: "OPENROUTER_API_KEY"},
		{Name: "POSTGRES_PASSWORD", Required: true},
		{Name: "POSTGRES_USER", HasDefault: true},
		{Name: "ROOT_AGENT_MODEL", HasDefault: true},
	}, f.VarRefs())
}

func TestVolumeName(t *testing.T) {
	f, err := Parse([]byte(testCompose))
	require.NoError(t, err)
	f.Name = "blog"

	assert.Equal(t, "blog_agent_data", f.VolumeName("agent_data"))
	assert.Equal(t, "blog_pg_data", f.VolumeName("pg_data"))
	assert.Equal(t, "some_other_volume", f.VolumeName("some_other_volume"))
}

func TestVarRefs_BareReferenceWins(t *testing.T) {
	f, err := Parse([]byte(`
services:
  a:
    image: ${TAG:-latest}
  b:
    image: ${TAG}
`))
	require.NoError(t, err)
	assert.Equal(t, []VarRef{{Name: "TAG"}}, f.VarRefs())
}

func TestCheck(t *testing.T) {
	f, err := Parse([]byte(testCompose))
	require.NoError(t, err)

	known := map[string]bool{"DATABASE_URL": true, "OPENROUTER_API_KEY": true}
	r := f.Check(func(name string) bool { return known[name] })

	assert.Equal(t, []string{"POSTGRES_PASSWORD"}, r.Unsatisfied)
	assert.Equal(t, []string{"app", "db"}, r.Services)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "docker-compose.yml"))
		var cliErr *model.CLIError
		require.True(t, errors.As(err, &cliErr))
		assert.Equal(t, model.ExitConfigNotFound, cliErr.Code)
	})

	t.Run("no services", func(t *testing.T) {
		_, err := Load(writeCompose(t, t.TempDir(), "volumes:\n  data:\n"))
		var cliErr *model.CLIError
		require.True(t, errors.As(err, &cliErr))
		assert.Equal(t, model.ExitConfigInvalid, cliErr.Code)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeCompose(t, t.TempDir(), "services: [\n"))
		var cliErr *model.CLIError
		require.True(t, errors.As(err, &cliErr))
		assert.Equal(t, model.ExitConfigInvalid, cliErr.Code)
	})
}

func TestFindFile(t *testing.T) {
	dir := t.TempDir()
	_, err := FindFile(dir)
	require.Error(t, err)

	writeCompose(t, dir, testCompose)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "compose.yaml"), []byte(testCompose), 0o644))

	path, err := FindFile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "compose.yaml"), path)
}

// TestLoad_FromWorkingDirectory loads the file discovered in "." and checks
// that the project name comes from the enclosing directory.
func TestLoad_FromWorkingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "blog-agent")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docker-compose.yml"), []byte(`services:
  agent:
    image: blog-agent
volumes:
  pg_data: {}
`), 0o644))
	t.Chdir(dir)

	path, err := FindFile(".")
	require.NoError(t, err)
	f, err := Load(path)
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(f.Path))
	assert.Equal(t, "blog-agent", f.ProjectName())
	assert.Equal(t, "blog-agent_pg_data", f.VolumeName("pg_data"))
}
