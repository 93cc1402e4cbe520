// container.go lists compose project containers through the Docker SDK and
// drives `docker compose` through the docker CLI plugin.
//
// Containers are listed via the SDK because the result is structured.
// Lifecycle changes (pull, up, down) go through the CLI because compose
// resolves the YAML, env files and interpolation itself.
package docker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"

	"github.com/shinji-kodama/blog-agent/internal/model"
)

// ListProjectContainers returns every container of a compose project,
// including stopped ones, sorted by service then name. One-off
// `compose run` containers are omitted.
func (c *Client) ListProjectContainers(ctx context.Context, project string) ([]model.ContainerInfo, error) {
	containers, err := c.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: ProjectFilter(project),
	})
	if err != nil {
		return nil, model.WrapCLIError(model.ExitDockerNotRunning, "failed to list Docker containers", err)
	}

	result := make([]model.ContainerInfo, 0, len(containers))
	for _, ctr := range containers {
		// The daemon filters already; this guards against fakes and older
		// daemons that ignore label filters.
		if ctr.Labels[LabelComposeProject] != project || IsOneoff(ctr.Labels) {
			continue
		}
		result = append(result, containerToInfo(ctr))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ServiceName != result[j].ServiceName {
			return result[i].ServiceName < result[j].ServiceName
		}
		return result[i].ContainerName < result[j].ContainerName
	})
	return result, nil
}

// containerToInfo converts a Docker API container summary to
// model.ContainerInfo. Docker returns names with a leading "/", which is
// stripped.
func containerToInfo(c container.Summary) model.ContainerInfo {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}

	return model.ContainerInfo{
		ContainerID:   c.ID,
		ContainerName: name,
		ServiceName:   c.Labels[LabelComposeService],
		Image:         c.Image,
		Status:        c.State,
		Labels:        c.Labels,
		CreatedAt:     time.Unix(c.Created, 0).UTC(),
	}
}

// CommandRunner runs `docker <args>` in dir and returns the combined output.
type CommandRunner func(ctx context.Context, dir string, args []string) ([]byte, error)

// ExecRunner runs the docker binary with os/exec.
func ExecRunner(ctx context.Context, dir string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	return cmd.CombinedOutput()
}

// Compose runs docker compose for one project directory.
type Compose struct {
	// Dir is the project directory; compose resolves relative paths
	// against it.
	Dir string

	// Files are passed with -f in order. Empty means compose's own
	// default file lookup.
	Files []string

	// Run executes the command. Nil means ExecRunner.
	Run CommandRunner
}

// Up runs `docker compose up -d`.
func (c *Compose) Up(ctx context.Context) error {
	return c.run(ctx, "up", "-d")
}

// Down runs `docker compose down`, adding -v when removeVolumes is set so
// the project's named volumes are removed too.
func (c *Compose) Down(ctx context.Context, removeVolumes bool) error {
	if removeVolumes {
		return c.run(ctx, "down", "-v")
	}
	return c.run(ctx, "down")
}

// Pull runs `docker compose pull`.
func (c *Compose) Pull(ctx context.Context) error {
	return c.run(ctx, "pull")
}

// Args returns the full docker argument list for a compose subcommand.
func (c *Compose) Args(sub ...string) []string {
	args := make([]string, 0, len(c.Files)*2+len(sub)+1)
	args = append(args, "compose")
	for _, f := range c.Files {
		args = append(args, "-f", f)
	}
	return append(args, sub...)
}

func (c *Compose) run(ctx context.Context, sub ...string) error {
	run := c.Run
	if run == nil {
		run = ExecRunner
	}

	args := c.Args(sub...)
	output, err := run(ctx, c.Dir, args)
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("docker %s failed: %s", strings.Join(args, " "), strings.TrimSpace(string(output))),
			err,
		)
	}
	return nil
}
