// Package docker provides Docker Engine API wrappers and compose lifecycle
// operations for the deploy commands.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Listing the containers of a compose project by its
//     com.docker.compose.project label
//   - Named volume inspection and removal
//   - Docker Compose operations: pull, up, down
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
// Compose itself is driven through the docker CLI plugin.
package docker
