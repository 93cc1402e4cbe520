package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/blog-agent/internal/docker"
	"github.com/shinji-kodama/blog-agent/internal/model"
)

// Docker entry points. Tests replace them.
var (
	newDockerClient                      = docker.NewClient
	composeRunner   docker.CommandRunner = docker.ExecRunner
)

// composeFlags select the compose project a command works on.
type composeFlags struct {
	file string
	dir  string
}

func (f *composeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "compose", "", "Compose file (default: discovered in --dir)")
	cmd.Flags().StringVar(&f.dir, "dir", ".", "Compose project directory")
}

// compose returns the runner for the selected project.
func (f *composeFlags) compose() *docker.Compose {
	c := &docker.Compose{Dir: f.dir, Run: composeRunner}
	if f.file != "" {
		c.Dir = filepath.Dir(f.file)
		c.Files = []string{filepath.Base(f.file)}
	}
	return c
}

func newDeployStatusCommand() *cobra.Command {
	var (
		flags   composeFlags
		project string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List the containers of the compose project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if project == "" {
				f, err := loadCompose(flags.file, flags.dir)
				if err != nil {
					return err
				}
				project = f.ProjectName()
			}

			client, err := newDockerClient()
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Ping(ctx); err != nil {
				return err
			}
			containers, err := client.ListProjectContainers(ctx, project)
			if err != nil {
				return err
			}

			if IsJSONOutput() {
				printJSON(cmd, map[string]any{"project": project, "containers": containers})
				return nil
			}
			if len(containers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), hintStyle.Render("No containers for project "+project))
				return nil
			}
			writeContainerTable(cmd.OutOrStdout(), containers, time.Now())
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&project, "project", "", "Compose project name (default: from the compose file)")
	return cmd
}

// writeContainerTable prints containers as a fixed-width table.
func writeContainerTable(w io.Writer, containers []model.ContainerInfo, now time.Time) {
	fmt.Fprintf(w, "%-12s %-24s %-36s %-10s %s\n", "SERVICE", "NAME", "IMAGE", "STATUS", "CREATED")
	for _, c := range containers {
		status := fmt.Sprintf("%-10s", c.Status)
		if !c.IsRunning() {
			status = warningStyle.Render(status)
		}
		fmt.Fprintf(w, "%-12s %-24s %-36s %s %s\n",
			c.ServiceName, c.ContainerName, c.Image, status, formatAge(now.Sub(c.CreatedAt)))
	}
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func newDeployUpCommand() *cobra.Command {
	var flags composeFlags

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start the compose project (docker compose up -d)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := flags.compose()
			VerboseLog("Running %s in %s", composeArgsString(c, "up", "-d"), c.Dir)
			if err := c.Up(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Project started"))
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newDeployDownCommand() *cobra.Command {
	var (
		flags   composeFlags
		volumes bool
	)

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop the compose project (docker compose down)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := flags.compose()
			if volumes {
				VerboseLog("Running %s in %s", composeArgsString(c, "down", "-v"), c.Dir)
			} else {
				VerboseLog("Running %s in %s", composeArgsString(c, "down"), c.Dir)
			}
			if err := c.Down(cmd.Context(), volumes); err != nil {
				return err
			}
			msg := "Project stopped"
			if volumes {
				msg += " and volumes removed"
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(msg))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&volumes, "volumes", false, "Also remove the project's named volumes")
	return cmd
}

func newDeployResetVolumeCommand() *cobra.Command {
	var (
		flags composeFlags
		force bool
	)

	cmd := &cobra.Command{
		Use:   "reset-volume <volume>",
		Short: "Recreate a named volume with wrong ownership",
		Long: `Fix "permission denied" errors on a named volume that was first created
by a container running as root.

The project is taken down with its volumes (docker compose down -v), the
volume is removed if it still exists, and the project is started again so
the volume is recreated. All data in the volume is lost.

<volume> is a key of the compose file's volumes section or a full Docker
volume name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			name := args[0]
			if f, err := loadCompose(flags.file, flags.dir); err == nil {
				name = f.VolumeName(args[0])
			} else {
				VerboseLog("No compose file, using %q as the volume name: %v", name, err)
			}

			if !force {
				if err := requireConfirmation(fmt.Sprintf("Delete all data in volume %s?", name)); err != nil {
					return err
				}
			}

			client, err := newDockerClient()
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Ping(ctx); err != nil {
				return err
			}
			exists, err := client.VolumeExists(ctx, name)
			if err != nil {
				return err
			}
			if !exists {
				fmt.Fprintln(cmd.ErrOrStderr(), hintStyle.Render("Volume "+name+" does not exist yet; the project will create it"))
			}
			if err := docker.ResetVolume(ctx, client, flags.compose(), name, logger); err != nil {
				return err
			}

			if IsJSONOutput() {
				printJSON(cmd, map[string]string{"volume": name, "status": "recreated"})
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Volume "+name+" recreated"))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip the confirmation prompt")
	return cmd
}

// composeArgsString renders the docker command for display.
func composeArgsString(c *docker.Compose, sub ...string) string {
	return "docker " + strings.Join(c.Args(sub...), " ")
}
