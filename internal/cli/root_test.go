package cli

import (
	"bytes"
	"errors"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/blog-agent/internal/model"
)

// runCLI executes the root command with args and returns what it wrote to
// stdout. Each call builds a fresh command, which resets the global flags.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// exitCode extracts the exit code Execute would use for err.
func exitCode(t *testing.T, err error) model.ExitCode {
	t.Helper()
	require.Error(t, err)
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}
	return model.ExitGeneralError
}

// stubConfirm answers every confirmation prompt with answer and records
// the questions asked.
func stubConfirm(t *testing.T, answer bool) *[]string {
	t.Helper()
	var asked []string
	prev := confirm
	confirm = func(question string) (bool, error) {
		asked = append(asked, question)
		return answer, nil
	}
	t.Cleanup(func() { confirm = prev })
	return &asked
}

func TestRequireConfirmation(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		asked := stubConfirm(t, true)
		assert.NoError(t, requireConfirmation("Proceed?"))
		assert.Equal(t, []string{"Proceed?"}, *asked)
	})

	t.Run("declined maps to cancelled", func(t *testing.T) {
		stubConfirm(t, false)
		err := requireConfirmation("Proceed?")
		assert.Equal(t, model.ExitUserCancelled, exitCode(t, err))
	})
}

func TestResolveListenAddr(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	taken := ln.Addr().(*net.TCPAddr).Port
	takenAddr := net.JoinHostPort("127.0.0.1", strconv.Itoa(taken))

	t.Run("taken port without auto-port", func(t *testing.T) {
		_, err := resolveListenAddr(takenAddr, false)
		assert.Equal(t, model.ExitPortUnavailable, exitCode(t, err))
		assert.Contains(t, err.Error(), "--auto-port")
	})

	t.Run("auto-port picks a later port", func(t *testing.T) {
		if taken == 65535 {
			t.Skip("no ports above the listener")
		}
		addr, err := resolveListenAddr(takenAddr, true)
		require.NoError(t, err)

		host, portStr, err := net.SplitHostPort(addr)
		require.NoError(t, err)
		p, err := strconv.Atoi(portStr)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", host)
		assert.Greater(t, p, taken)
	})

	t.Run("invalid addresses", func(t *testing.T) {
		for _, addr := range []string{"localhost", "127.0.0.1:http", "127.0.0.1:70000"} {
			_, err := resolveListenAddr(addr, false)
			assert.Equal(t, model.ExitConfigInvalid, exitCode(t, err), addr)
		}
	})
}

func TestEnvFileNotFound(t *testing.T) {
	_, err := runCLI(t, "--env-file", t.TempDir()+"/missing.env", "deploy", "bootstrap-script", "--repo", "acme/blog")
	assert.Equal(t, model.ExitConfigNotFound, exitCode(t, err))
}

func TestVersionFlag(t *testing.T) {
	out, err := runCLI(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "blog-agent version dev")
}
