// Package remote runs the deploy step on the server over SSH: the same
// `docker compose pull && docker compose up -d` the CI workflow runs after
// pushing a new image. It also generates the ed25519 deploy key the
// workflow authenticates with.
//
// SSH is implemented with golang.org/x/crypto/ssh. Host keys are verified
// against a known_hosts file unless explicitly disabled.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/shinji-kodama/blog-agent/internal/model"
)

// DefaultDir is the directory on the server holding the compose project.
const DefaultDir = "~/blog-agent"

// DefaultTimeout bounds the TCP dial and SSH handshake.
const DefaultTimeout = 15 * time.Second

// Config describes how to reach the server.
type Config struct {
	Host string
	Port int
	User string

	// PrivateKey is the PEM private key. When empty, KeyFile is read.
	PrivateKey []byte
	KeyFile    string

	// KnownHostsFile defaults to ~/.ssh/known_hosts.
	KnownHostsFile string

	// InsecureIgnoreHostKey disables host key verification.
	InsecureIgnoreHostKey bool

	Timeout time.Duration
}

// Addr returns host:port, defaulting the port to 22.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// Client is a connected SSH client.
type Client struct {
	conn   *ssh.Client
	logger *zap.Logger
}

// Dial connects and authenticates to the server.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Host == "" || cfg.User == "" {
		return nil, model.NewCLIError(model.ExitConfigInvalid, "SERVER_HOST and SERVER_USER are required")
	}

	signer, err := loadSigner(cfg)
	if err != nil {
		return nil, err
	}
	hostKeyCallback, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	clientConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	addr := cfg.Addr()
	dialer := net.Dialer{Timeout: timeout}
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	// The handshake has no context parameter; bound it with a deadline.
	_ = nc.SetDeadline(time.Now().Add(timeout))
	sc, chans, reqs, err := ssh.NewClientConn(nc, addr, clientConfig)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	_ = nc.SetDeadline(time.Time{})

	logger.Debug("ssh connected", zap.String("addr", addr), zap.String("user", cfg.User))
	return &Client{conn: ssh.NewClient(sc, chans, reqs), logger: logger}, nil
}

func loadSigner(cfg Config) (ssh.Signer, error) {
	key := cfg.PrivateKey
	if len(key) == 0 {
		if cfg.KeyFile == "" {
			return nil, model.NewCLIError(model.ExitConfigInvalid, "an SSH private key is required (--key or SSH_PRIVATE_KEY)")
		}
		data, err := os.ReadFile(expandHome(cfg.KeyFile))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, model.NewCLIError(model.ExitConfigNotFound, fmt.Sprintf("SSH key not found: %s", cfg.KeyFile))
			}
			return nil, fmt.Errorf("failed to read SSH key: %w", err)
		}
		key = data
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigInvalid, "failed to parse SSH private key", err)
	}
	return signer, nil
}

func hostKeyCallback(cfg Config) (ssh.HostKeyCallback, error) {
	if cfg.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	path := cfg.KnownHostsFile
	if path == "" {
		path = "~/.ssh/known_hosts"
	}
	cb, err := knownhosts.New(expandHome(path))
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigNotFound,
			fmt.Sprintf("failed to load known hosts from %s (run ssh-keyscan, or pass --insecure)", path), err)
	}
	return cb, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// Run executes command in a new session, streaming its output. Cancelling
// ctx closes the session.
func (c *Client) Run(ctx context.Context, command string, stdout, stderr io.Writer) error {
	session, err := c.conn.NewSession()
	if err != nil {
		return fmt.Errorf("failed to open ssh session: %w", err)
	}
	defer session.Close()

	session.Stdout = stdout
	session.Stderr = stderr

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-done:
		}
	}()

	c.logger.Info("running remote command", zap.String("command", command))
	if err := session.Run(command); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("remote command exited with status %d", exitErr.ExitStatus())
		}
		return fmt.Errorf("remote command failed: %w", err)
	}
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// DeployCommand is the shell command that updates the running stack.
// A leading "~/" stays unquoted so the remote shell expands it.
func DeployCommand(dir string) string {
	return "cd " + shellPath(dir) + " && docker compose pull && docker compose up -d"
}

func shellPath(dir string) string {
	if dir == "~" {
		return dir
	}
	if rest, ok := strings.CutPrefix(dir, "~/"); ok {
		return "~/" + shellQuote(rest)
	}
	return shellQuote(dir)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
