package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shinji-kodama/blog-agent/internal/config"
	"github.com/shinji-kodama/blog-agent/internal/deploy"
	"github.com/shinji-kodama/blog-agent/internal/gitrepo"
	"github.com/shinji-kodama/blog-agent/internal/model"
	"github.com/shinji-kodama/blog-agent/internal/remote"
)

// NewDeployCommand creates the "deploy" command group: the deployment
// runbook steps as individual subcommands.
func NewDeployCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deployment runbook: keys, secrets, compose lifecycle and remote update",
		Long: `Tools for deploying the agent to a server with Docker Compose.

A first deployment usually runs:
  blog-agent deploy bootstrap-script   review and run the server setup script
  blog-agent deploy keygen             create the deploy key
  blog-agent deploy secrets            upload GitHub Actions secrets and variables
  blog-agent deploy trigger            push the branch that CI deploys

On the server, check, status, up, down and reset-volume manage the compose
project. remote runs the CI update step by hand over SSH.`,
	}

	cmd.AddCommand(newDeployKeygenCommand())
	cmd.AddCommand(newDeploySecretsCommand())
	cmd.AddCommand(newDeployCheckCommand())
	cmd.AddCommand(newDeployStatusCommand())
	cmd.AddCommand(newDeployUpCommand())
	cmd.AddCommand(newDeployDownCommand())
	cmd.AddCommand(newDeployResetVolumeCommand())
	cmd.AddCommand(newDeployRemoteCommand())
	cmd.AddCommand(newDeployTriggerCommand())
	cmd.AddCommand(newDeployBootstrapCommand())

	return cmd
}

const defaultKeyPath = "~/.ssh/blog_agent_deploy"

func newDeployKeygenCommand() *cobra.Command {
	var (
		out     string
		comment string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ed25519 deploy key",
		Long: `Generate an ed25519 key pair in OpenSSH format.

The private key is written with mode 0600 and becomes the SSH_PRIVATE_KEY
secret. The public key (<out>.pub) goes into the server's authorized_keys.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := expandHome(out)
			kp, err := remote.WriteKeyPair(path, comment, force)
			if err != nil {
				return err
			}
			logger.Info("generated deploy key", zap.String("path", path), zap.String("fingerprint", kp.Fingerprint))

			if IsJSONOutput() {
				printJSON(cmd, map[string]string{
					"privateKey":    path,
					"publicKey":     path + ".pub",
					"fingerprint":   kp.Fingerprint,
					"authorizedKey": string(kp.AuthorizedKey),
				})
				return nil
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, successStyle.Render("Deploy key created"))
			fmt.Fprintf(w, "  Private key: %s\n", path)
			fmt.Fprintf(w, "  Public key:  %s.pub\n", path)
			fmt.Fprintf(w, "  Fingerprint: %s\n", kp.Fingerprint)
			fmt.Fprintln(w)
			fmt.Fprintln(w, hintStyle.Render("Add the public key to ~/.ssh/authorized_keys on the server:"))
			fmt.Fprintf(w, "  %s", kp.AuthorizedKey)
			fmt.Fprintln(w, hintStyle.Render("Then upload the private key with: blog-agent deploy secrets --ssh-key "+path))
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", defaultKeyPath, "Private key path (the public key gets a .pub suffix)")
	cmd.Flags().StringVar(&comment, "comment", "blog-agent-deploy", "Comment appended to the public key")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing key files")
	return cmd
}

func newDeployRemoteCommand() *cobra.Command {
	var (
		host           string
		user           string
		keyFile        string
		port           int
		dir            string
		knownHosts     string
		insecureIgnore bool
	)

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Pull and restart the compose project on the server over SSH",
		Long: `Connect to the server and run the CI deploy step:

  cd <dir> && docker compose pull && docker compose up -d

Host, user and key default to SERVER_HOST, SERVER_USER and SSH_PRIVATE_KEY.
The server's host key must be in ~/.ssh/known_hosts unless --insecure is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := remote.Config{
				Host:                  firstNonEmpty(host, os.Getenv("SERVER_HOST")),
				User:                  firstNonEmpty(user, os.Getenv("SERVER_USER")),
				Port:                  port,
				KnownHostsFile:        knownHosts,
				InsecureIgnoreHostKey: insecureIgnore,
			}
			if keyFile != "" {
				cfg.KeyFile = expandHome(keyFile)
			} else if key := os.Getenv("SSH_PRIVATE_KEY"); key != "" {
				cfg.PrivateKey = []byte(key)
			}
			if insecureIgnore {
				fmt.Fprintln(cmd.ErrOrStderr(), warningStyle.Render("Warning: host key verification is disabled"))
			}

			ctx := cmd.Context()
			client, err := remote.Dial(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			command := remote.DeployCommand(dir)
			VerboseLog("Running on %s: %s", cfg.Addr(), command)
			if err := client.Run(ctx, command, cmd.OutOrStdout(), cmd.ErrOrStderr()); err != nil {
				return err
			}
			if !IsJSONOutput() {
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Remote deploy finished on "+cfg.Host))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Server host (default $SERVER_HOST)")
	cmd.Flags().StringVar(&user, "user", "", "SSH user (default $SERVER_USER)")
	cmd.Flags().StringVar(&keyFile, "key", "", "Private key file (default $SSH_PRIVATE_KEY contents)")
	cmd.Flags().IntVar(&port, "port", 22, "SSH port")
	cmd.Flags().StringVar(&dir, "dir", remote.DefaultDir, "Compose directory on the server")
	cmd.Flags().StringVar(&knownHosts, "known-hosts", "", "known_hosts file (default ~/.ssh/known_hosts)")
	cmd.Flags().BoolVar(&insecureIgnore, "insecure", false, "Skip host key verification")
	return cmd
}

func newDeployTriggerCommand() *cobra.Command {
	var remoteName string

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Push the current branch to start the CI deploy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo := gitrepo.NewManager(".")

			branch, err := repo.CurrentBranch(ctx)
			if err != nil {
				return err
			}
			logger.Info("pushing branch", zap.String("remote", remoteName), zap.String("branch", branch))
			if err := repo.Push(ctx, remoteName, branch); err != nil {
				return err
			}

			if IsJSONOutput() {
				printJSON(cmd, map[string]string{"remote": remoteName, "branch": branch})
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("Pushed %s to %s", branch, remoteName)))
			return nil
		},
	}

	cmd.Flags().StringVar(&remoteName, "remote", gitrepo.DefaultRemote, "Git remote to push to")
	return cmd
}

func newDeployBootstrapCommand() *cobra.Command {
	var (
		ref  string
		user string
		repo string
		key  string
	)

	cmd := &cobra.Command{
		Use:   "bootstrap-script",
		Short: "Print how to fetch, review and run the server setup script",
		Long: `Print the URL of the server setup script and the steps to run it.

Nothing is downloaded or executed. Pass --ref with a tag or commit SHA to
pin the script to a reviewed revision.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if repo == "" {
				r, err := gitrepo.NewManager(".").GitHubRepo(cmd.Context(), gitrepo.DefaultRemote)
				if err != nil {
					return model.WrapCLIError(model.ExitGitError, "could not determine the repository (use --repo owner/name)", err)
				}
				repo = r
			}
			info := deploy.BootstrapInfo{
				Repo:    repo,
				Ref:     ref,
				User:    firstNonEmpty(user, os.Getenv("SERVER_USER"), "deploy"),
				KeyPath: key,
			}
			if IsJSONOutput() {
				printJSON(cmd, map[string]string{
					"repo": repo,
					"ref":  firstNonEmpty(ref, "main"),
					"url":  deploy.ScriptURL(repo, firstNonEmpty(ref, "main"), ""),
				})
				return nil
			}
			return deploy.WriteBootstrap(cmd.OutOrStdout(), info)
		},
	}

	cmd.Flags().StringVar(&ref, "ref", "", "Git ref of the script (default main)")
	cmd.Flags().StringVar(&user, "user", "", "Deploy user created on the server (default $SERVER_USER or deploy)")
	cmd.Flags().StringVar(&repo, "repo", "", "GitHub repository owner/name (default: origin remote)")
	cmd.Flags().StringVar(&key, "key", defaultKeyPath, "Deploy key path shown in the instructions")
	return cmd
}

// lookupChain returns the env file values (when --env-file is set) followed
// by the process environment.
func lookupChain() ([]config.LookupFunc, error) {
	var sources []config.LookupFunc
	if envFile != "" {
		vars, err := config.ParseEnvFile(envFile)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitConfigInvalid, "failed to read env file "+envFile, err)
		}
		sources = append(sources, config.MapLookup(vars))
	}
	return append(sources, config.OSLookup), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
