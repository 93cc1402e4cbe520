// Package scaffold initializes a new project from the agent template.
//
// Initialization is a fixed, linear sweep: substitute the template's package,
// repository and owner names across a list of files, rename the package
// directory, strip the authors field and reset the version of the project
// file, replace README.md and CHANGELOG.md wholesale, and regenerate the
// dependency lockfile. Plan computes the actions without touching the tree;
// Apply performs them. In dry-run mode every planned action is logged and
// nothing is written.
//
// The template may describe itself in a ".template.jsonc" manifest at its
// root. JSONC (JSON with comments) is parsed with github.com/tidwall/jsonc.
package scaffold

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"github.com/shinji-kodama/blog-agent/internal/model"
)

// ManifestFile is the template manifest name, relative to the template root.
const ManifestFile = ".template.jsonc"

// Identity names the template's own package, repository and owner, which
// are the strings being replaced.
type Identity struct {
	Package string `json:"package"`
	Repo    string `json:"repo"`
	Owner   string `json:"owner"`
}

// Manifest describes what initialization touches.
type Manifest struct {
	Template Identity `json:"template"`

	// Files are swept for substitutions, in order. Missing files are skipped.
	Files []string `json:"files"`

	// PackageDir is the directory named after the template package
	// (e.g. "src/agent"). It is renamed when the package name changes.
	PackageDir string `json:"packageDir"`

	// ProjectFile holds the authors and version fields: pyproject.toml or
	// package.json.
	ProjectFile string `json:"projectFile"`

	// ReplaceFiles maps a path to a text/template that replaces the file.
	// Templates see .Package, .Repo and .Owner.
	ReplaceFiles map[string]string `json:"replaceFiles"`

	// LockCommand regenerates the dependency lockfile, e.g. ["uv", "lock"].
	LockCommand []string `json:"lockCommand"`
}

// DefaultManifest describes the stock agent template.
func DefaultManifest() *Manifest {
	return &Manifest{
		Template: Identity{Package: "agent", Repo: "agent-template", Owner: "queryplanner"},
		Files: []string{
			"pyproject.toml",
			"README.md",
			"Makefile",
			"Dockerfile",
			"docker-compose.yml",
			".github/workflows/deploy.yml",
			"src/agent/__init__.py",
			"tests/conftest.py",
		},
		PackageDir:  "src/agent",
		ProjectFile: "pyproject.toml",
		ReplaceFiles: map[string]string{
			"README.md":    defaultReadme,
			"CHANGELOG.md": defaultChangelog,
		},
		LockCommand: []string{"uv", "lock"},
	}
}

const defaultReadme = `# {{ .Repo }}

{{ .Package | title }} agent maintained by {{ .Owner }}.

## Development

    make install
    make test
`

const defaultChangelog = `# Changelog

## [Unreleased]

- Initial project created from the agent template.
`

// LoadManifest reads ManifestFile from root. Fields the manifest leaves
// empty keep their defaults; a missing manifest yields DefaultManifest.
func LoadManifest(root string) (*Manifest, error) {
	m := DefaultManifest()
	path := filepath.Join(root, ManifestFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", ManifestFile, err)
	}

	var raw Manifest
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigInvalid,
			fmt.Sprintf("failed to parse %s", path), err)
	}

	if raw.Template.Package != "" {
		m.Template.Package = raw.Template.Package
	}
	if raw.Template.Repo != "" {
		m.Template.Repo = raw.Template.Repo
	}
	if raw.Template.Owner != "" {
		m.Template.Owner = raw.Template.Owner
	}
	if raw.Files != nil {
		m.Files = raw.Files
	}
	if raw.PackageDir != "" {
		m.PackageDir = raw.PackageDir
	}
	if raw.ProjectFile != "" {
		m.ProjectFile = raw.ProjectFile
	}
	if raw.ReplaceFiles != nil {
		m.ReplaceFiles = raw.ReplaceFiles
	}
	if raw.LockCommand != nil {
		m.LockCommand = raw.LockCommand
	}
	return m, nil
}
