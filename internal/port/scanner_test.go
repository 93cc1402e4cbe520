package port

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// occupy binds an OS-assigned port on loopback and returns it.
func occupy(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return tcpAddr.Port
}

// TestIsPortAvailable_UsedPort verifies a port held by another listener is
// reported as unavailable.
func TestIsPortAvailable_UsedPort(t *testing.T) {
	port := occupy(t)
	assert.False(t, NewScanner("127.0.0.1").IsPortAvailable(port))
}

func TestIsPortAvailable_FreePort(t *testing.T) {
	scanner := NewScanner("127.0.0.1")

	free, err := scanner.FindAvailablePort(50000, 50100)
	require.NoError(t, err)
	assert.True(t, scanner.IsPortAvailable(free))
}

func TestIsPortAvailable_OutOfRange(t *testing.T) {
	scanner := NewScanner("127.0.0.1")
	assert.False(t, scanner.IsPortAvailable(0))
	assert.False(t, scanner.IsPortAvailable(70000))
}

// TestFindAvailablePort_SkipsUsed checks that the scan moves past an
// occupied port.
func TestFindAvailablePort_SkipsUsed(t *testing.T) {
	used := occupy(t)
	scanner := NewScanner("127.0.0.1")

	got, err := scanner.FindAvailablePort(used, used+50)
	require.NoError(t, err)
	assert.NotEqual(t, used, got)
	assert.Greater(t, got, used)
}

func TestFindAvailablePort_Exhausted(t *testing.T) {
	used := occupy(t)
	_, err := NewScanner("127.0.0.1").FindAvailablePort(used, used)
	assert.Error(t, err)
}

func TestNewScanner_AllInterfaces(t *testing.T) {
	assert.Equal(t, "", NewScanner("0.0.0.0").Host)
	assert.Equal(t, "127.0.0.1", NewScanner("127.0.0.1").Host)
}
