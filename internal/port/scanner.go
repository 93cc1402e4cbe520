// Package port checks TCP port availability before the server binds.
//
// Checking up front lets the serve command fail with a dedicated exit code
// and a clear message instead of a raw "address already in use" from the
// HTTP server, and lets --auto-port pick the next free port.
package port

import (
	"fmt"
	"net"
	"strconv"
)

// Scanner probes ports on a single bind host.
type Scanner struct {
	// Host is the interface to probe. Empty means all interfaces, which
	// matches how the server binds by default.
	Host string
}

// NewScanner creates a Scanner for host.
func NewScanner(host string) *Scanner {
	if host == "0.0.0.0" {
		host = ""
	}
	return &Scanner{Host: host}
}

// IsPortAvailable reports whether a TCP listener can bind the port.
// Ports outside 1-65535 are never available.
//
// The answer is only a snapshot: another process may take the port
// between this check and the server's own Listen, in which case the
// server still fails to bind.
func (s *Scanner) IsPortAvailable(port int) bool {
	if port < 1 || port > 65535 {
		return false
	}
	listener, err := net.Listen("tcp", net.JoinHostPort(s.Host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	// Only probing; the real listener is opened by the server.
	_ = listener.Close()
	return true
}

// FindAvailablePort returns the first free port in [startPort, endPort].
// The scan is sequential so repeated runs pick the same port.
//
// An empty or inverted range returns an error without probing.
func (s *Scanner) FindAvailablePort(startPort, endPort int) (int, error) {
	for port := startPort; port <= endPort; port++ {
		if s.IsPortAvailable(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available tcp port found in range %d-%d", startPort, endPort)
}
