package cli

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shinji-kodama/blog-agent/internal/config"
	"github.com/shinji-kodama/blog-agent/internal/model"
	"github.com/shinji-kodama/blog-agent/internal/port"
	"github.com/shinji-kodama/blog-agent/internal/server"
)

// autoPortRange is how far --auto-port searches above the requested port.
const autoPortRange = 100

type serveFlags struct {
	addr     string
	autoPort bool
}

// NewServeCommand creates the "serve" command.
func NewServeCommand() *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the blog agent over HTTP",
		Long: `Serve the blog pipeline over HTTP.

Endpoints:
  POST /run              {"session_id": "...", "message": "..."}
  GET  /sessions         list sessions
  GET  /sessions/{id}    session with state and events
  GET  /healthz          liveness probe

The address defaults to HOST:PORT from the environment (0.0.0.0:8000).
The server stops gracefully on SIGINT or SIGTERM.

Examples:
  blog-agent serve
  blog-agent serve --addr 127.0.0.1:9000
  blog-agent serve --auto-port`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.addr, "addr", "", "Listen address (host:port)")
	cmd.Flags().BoolVar(&flags.autoPort, "auto-port", false,
		fmt.Sprintf("Use the next free port (up to +%d) when the port is taken", autoPortRange))

	return cmd
}

// resolveListenAddr checks the port before binding so a taken port maps
// to its own exit code instead of a generic listen error.
func resolveListenAddr(addr string, autoPort bool) (string, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", model.WrapCLIError(model.ExitConfigInvalid, fmt.Sprintf("invalid listen address %q", addr), err)
	}
	p, err := strconv.Atoi(portStr)
	if err != nil || p < 1 || p > 65535 {
		return "", model.NewCLIError(model.ExitConfigInvalid, fmt.Sprintf("invalid port %q", portStr))
	}

	scanner := port.NewScanner(host)
	if scanner.IsPortAvailable(p) {
		return addr, nil
	}
	if !autoPort {
		return "", model.NewCLIError(model.ExitPortUnavailable,
			fmt.Sprintf("port %d is already in use (use --auto-port or --addr)", p))
	}

	free, err := scanner.FindAvailablePort(p+1, min(p+autoPortRange, 65535))
	if err != nil {
		return "", model.WrapCLIError(model.ExitPortUnavailable, fmt.Sprintf("port %d is in use", p), err)
	}
	VerboseLog("Port %d is in use; using %d", p, free)
	return net.JoinHostPort(host, strconv.Itoa(free)), nil
}

func runServe(ctx context.Context, flags *serveFlags) error {
	srvEnv, err := config.LoadServerEnv(config.OSLookup)
	if err != nil {
		return model.WrapCLIError(model.ExitConfigInvalid, "invalid server configuration", err)
	}
	addr := flags.addr
	if addr == "" {
		addr = srvEnv.Addr()
	}

	addr, err = resolveListenAddr(addr, flags.autoPort)
	if err != nil {
		return err
	}

	deps, err := openAgentDeps()
	if err != nil {
		return err
	}
	defer func() { _ = deps.store.Close() }()

	runner, err := newBlogRunner(ctx, deps)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return model.WrapCLIError(model.ExitPortUnavailable, fmt.Sprintf("failed to listen on %s", addr), err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting server", zap.String("addr", ln.Addr().String()), zap.String("model", deps.env.Model))
	if !IsJSONOutput() {
		fmt.Printf("%s http://%s\n", successStyle.Render("Serving on"), ln.Addr().String())
	}
	return server.New(deps.env.AppName, runner, deps.store, logger).Serve(ctx, ln, srvEnv.ShutdownTimeout)
}
