// Package compose reads Docker Compose files for the deploy commands.
//
// Only the parts the deploy tooling inspects are modelled: the project name,
// services, named volumes, and ${VAR} interpolation references. Files are
// parsed with gopkg.in/yaml.v3. Interpolation references are collected by
// walking the YAML node tree, so references inside comments are ignored.
package compose

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/blog-agent/internal/model"
)

// DefaultFileNames lists the compose file names Docker Compose looks for,
// in its lookup order.
var DefaultFileNames = []string{
	"compose.yaml",
	"compose.yml",
	"docker-compose.yaml",
	"docker-compose.yml",
}

// File is a parsed compose file.
type File struct {
	// Path is the file the project was loaded from.
	Path string `yaml:"-"`

	// Name is the top-level project name. Empty means Docker Compose
	// derives it from the directory name.
	Name string `yaml:"name,omitempty"`

	Services map[string]Service `yaml:"services"`

	// Volumes holds the top-level named volume definitions. A volume
	// declared with no options decodes as a zero Volume.
	Volumes map[string]*Volume `yaml:"volumes,omitempty"`

	refs []VarRef
}

// Service is one compose service.
type Service struct {
	Image string `yaml:"image,omitempty"`

	// EnvFile may be a string or a list in compose syntax.
	EnvFile any `yaml:"env_file,omitempty"`
}

// Volume is a top-level named volume.
type Volume struct {
	// Name overrides the project-prefixed volume name.
	Name     string `yaml:"name,omitempty"`
	External bool   `yaml:"external,omitempty"`
}

// VarRef is one ${VAR} reference found in the file.
type VarRef struct {
	Name string `json:"name"`

	// HasDefault is true for ${VAR:-x}, ${VAR-x} and ${VAR:+x}, which
	// never fail interpolation.
	HasDefault bool `json:"hasDefault"`

	// Required is true for ${VAR:?msg} and ${VAR?msg}.
	Required bool `json:"required"`
}

// varRefRegex matches $VAR and ${VAR...}. "$$" escapes are stripped before
// matching.
var varRefRegex = regexp.MustCompile(`\$(?:\{([A-Za-z_][A-Za-z0-9_]*)(:?[-?+][^}]*)?\}|([A-Za-z_][A-Za-z0-9_]*))`)

// FindFile returns the first default compose file that exists in dir.
func FindFile(dir string) (string, error) {
	for _, name := range DefaultFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", model.NewCLIError(
		model.ExitConfigNotFound,
		fmt.Sprintf("no compose file found in %s (searched %s)", dir, strings.Join(DefaultFileNames, ", ")),
	)
}

// Load reads and parses a compose file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, model.NewCLIError(model.ExitConfigNotFound, fmt.Sprintf("compose file not found: %s", path))
		}
		return nil, fmt.Errorf("failed to read compose file: %w", err)
	}

	f, err := Parse(data)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigInvalid, fmt.Sprintf("failed to parse %s", path), err)
	}
	// The project name derives from the directory, so a relative path
	// such as "docker-compose.yml" must be anchored first.
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	f.Path = path
	return f, nil
}

// Parse decodes compose YAML.
func Parse(data []byte) (*File, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}

	var f File
	if err := root.Decode(&f); err != nil {
		return nil, err
	}
	if len(f.Services) == 0 {
		return nil, errors.New("compose file defines no services")
	}
	f.refs = collectRefs(&root)
	return &f, nil
}

func collectRefs(root *yaml.Node) []VarRef {
	seen := map[string]int{}
	var refs []VarRef

	var walk func(n *yaml.Node)
	walk = func(n *yaml.Node) {
		if n.Kind == yaml.ScalarNode {
			value := strings.ReplaceAll(n.Value, "$$", "")
			for _, m := range varRefRegex.FindAllStringSubmatch(value, -1) {
				ref := VarRef{Name: m[1]}
				if ref.Name == "" {
					ref.Name = m[3]
				}
				op := strings.TrimPrefix(m[2], ":")
				if op != "" {
					ref.HasDefault = op[0] == '-' || op[0] == '+'
					ref.Required = op[0] == '?'
				}

				if i, ok := seen[ref.Name]; ok {
					// A reference with a default anywhere does not excuse
					// a bare one elsewhere.
					refs[i].HasDefault = refs[i].HasDefault && ref.HasDefault
					refs[i].Required = refs[i].Required || ref.Required
					continue
				}
				seen[ref.Name] = len(refs)
				refs = append(refs, ref)
			}
		}
		for _, c := range n.Content {
			walk(c)
		}
	}
	walk(root)

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs
}

// ServiceNames returns the service names, sorted.
func (f *File) ServiceNames() []string {
	names := make([]string, 0, len(f.Services))
	for name := range f.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VolumeKeys returns the top-level named volume keys, sorted.
func (f *File) VolumeKeys() []string {
	keys := make([]string, 0, len(f.Volumes))
	for key := range f.Volumes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// VarRefs returns the interpolation references, sorted by name.
func (f *File) VarRefs() []VarRef {
	return append([]VarRef(nil), f.refs...)
}

var projectNameInvalid = regexp.MustCompile(`[^a-z0-9_-]`)

// ProjectName is the compose project name: the top-level name when set,
// otherwise the normalized name of the directory holding the file.
func (f *File) ProjectName() string {
	if f.Name != "" {
		return f.Name
	}
	dir := filepath.Base(filepath.Dir(f.Path))
	if f.Path == "" {
		dir = ""
	}
	return projectNameInvalid.ReplaceAllString(strings.ToLower(dir), "")
}

// VolumeName resolves a volume key (or an already-qualified name) to the
// Docker volume name compose creates for it.
func (f *File) VolumeName(key string) string {
	v, ok := f.Volumes[key]
	if !ok {
		return key
	}
	if v != nil && v.Name != "" {
		return v.Name
	}
	if v != nil && v.External {
		return key
	}
	return f.ProjectName() + "_" + key
}

// Report summarizes a compose file against the available configuration.
type Report struct {
	Project     string   `json:"project"`
	Services    []string `json:"services"`
	Volumes     []string `json:"volumes"`
	References  []VarRef `json:"references"`
	Unsatisfied []string `json:"unsatisfied"`
}

// Check reports the references that have no default and that known does
// not satisfy.
func (f *File) Check(known func(name string) bool) Report {
	r := Report{
		Project:     f.ProjectName(),
		Services:    f.ServiceNames(),
		Volumes:     f.VolumeKeys(),
		References:  f.VarRefs(),
		Unsatisfied: []string{},
	}
	for _, ref := range r.References {
		if ref.HasDefault || known(ref.Name) {
			continue
		}
		r.Unsatisfied = append(r.Unsatisfied, ref.Name)
	}
	return r
}
