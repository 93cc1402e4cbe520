package scaffold

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/tidwall/jsonc"
	"go.uber.org/zap"

	"github.com/shinji-kodama/blog-agent/internal/model"
)

// InitialVersion is written by the reset-version action.
const InitialVersion = "0.1.0"

// ActionKind enumerates the steps of an initialization.
type ActionKind string

const (
	ActionSubstitute     ActionKind = "substitute"
	ActionSkip           ActionKind = "skip"
	ActionRenameDir      ActionKind = "rename-dir"
	ActionStripAuthors   ActionKind = "strip-authors"
	ActionResetVersion   ActionKind = "reset-version"
	ActionReplaceFile    ActionKind = "replace-file"
	ActionRegenerateLock ActionKind = "regenerate-lock"
)

// Action is one planned step.
type Action struct {
	Kind ActionKind `json:"kind"`
	// Path is relative to the project root.
	Path string `json:"path"`
	// Target is the destination of a rename-dir action.
	Target string `json:"target,omitempty"`
	Detail string `json:"detail"`
}

// Options are the new project's names.
type Options struct {
	PackageName string
	RepoName    string
	Owner       string
	DryRun      bool
}

var (
	packageNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
	ownerRegex       = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9]|-[A-Za-z0-9]){0,38}$`)
	repoNameRegex    = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)
)

// Validate checks the names before any action is planned.
func (o Options) Validate() error {
	if !packageNameRegex.MatchString(o.PackageName) {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("invalid package name %q: use lowercase letters, digits and underscores, not starting with a digit", o.PackageName))
	}
	if !repoNameRegex.MatchString(o.RepoName) || o.RepoName == "." || o.RepoName == ".." {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("invalid repository name %q: use letters, digits, '.', '_' or '-'", o.RepoName))
	}
	if !ownerRegex.MatchString(o.Owner) {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("invalid owner %q: use letters, digits and single hyphens (max 39 characters)", o.Owner))
	}
	return nil
}

// Replacement is one literal substitution.
type Replacement struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// Replacements lists the substitutions in priority order: repository,
// owner, package. Unchanged names are omitted.
func Replacements(m *Manifest, opts Options) []Replacement {
	var out []Replacement
	add := func(old, new string) {
		if old != "" && old != new {
			out = append(out, Replacement{Old: old, New: new})
		}
	}
	add(m.Template.Repo, opts.RepoName)
	add(m.Template.Owner, opts.Owner)
	add(m.Template.Package, opts.PackageName)
	return out
}

// byPriority orders replacements the way they are matched: longer old
// strings first, so a name contained in another ("agent" in
// "agent-template") never rewrites the longer one's output. Equal lengths
// keep priority order.
func byPriority(reps []Replacement) []Replacement {
	sorted := append([]Replacement(nil), reps...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i].Old) > len(sorted[j].Old) })
	return sorted
}

// newReplacer builds a single-pass replacer over byPriority order.
func newReplacer(reps []Replacement) *strings.Replacer {
	sorted := byPriority(reps)
	pairs := make([]string, 0, len(sorted)*2)
	for _, r := range sorted {
		pairs = append(pairs, r.Old, r.New)
	}
	return strings.NewReplacer(pairs...)
}

// summarize counts the matches each replacement makes. It walks content
// left to right and, at each position, takes the first old string in
// byPriority order that matches there, skipping past it. This is the scan
// strings.Replacer performs, so the dry-run report matches what Apply
// writes even when names overlap across a boundary.
func summarize(reps []Replacement, content string) string {
	sorted := byPriority(reps)
	counts := make(map[string]int, len(sorted))

	for i := 0; i < len(content); {
		matched := false
		for _, r := range sorted {
			if r.Old != "" && strings.HasPrefix(content[i:], r.Old) {
				counts[r.Old]++
				i += len(r.Old)
				matched = true
				break
			}
		}
		if !matched {
			i++
		}
	}

	var parts []string
	for _, r := range reps {
		if n := counts[r.Old]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s -> %s (%d)", r.Old, r.New, n))
		}
	}
	return strings.Join(parts, ", ")
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Plan computes the actions for initializing root. It reads files but never
// modifies them.
func Plan(root string, opts Options, m *Manifest) ([]Action, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	reps := Replacements(m, opts)
	var actions []Action

	for _, rel := range m.Files {
		data, err := os.ReadFile(filepath.Join(root, rel))
		if errors.Is(err, os.ErrNotExist) {
			actions = append(actions, Action{Kind: ActionSkip, Path: rel, Detail: "file not found"})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", rel, err)
		}
		if summary := summarize(reps, string(data)); summary != "" {
			actions = append(actions, Action{Kind: ActionSubstitute, Path: rel, Detail: summary})
		}
	}

	if m.PackageDir != "" && m.Template.Package != opts.PackageName && exists(filepath.Join(root, m.PackageDir)) {
		target := filepath.ToSlash(filepath.Join(filepath.Dir(m.PackageDir), opts.PackageName))
		actions = append(actions, Action{
			Kind: ActionRenameDir, Path: m.PackageDir, Target: target,
			Detail: fmt.Sprintf("%s -> %s", m.PackageDir, target),
		})
	}

	if m.ProjectFile != "" {
		if exists(filepath.Join(root, m.ProjectFile)) {
			actions = append(actions,
				Action{Kind: ActionStripAuthors, Path: m.ProjectFile, Detail: "remove authors"},
				Action{Kind: ActionResetVersion, Path: m.ProjectFile, Detail: "version -> " + InitialVersion},
			)
		} else {
			actions = append(actions, Action{Kind: ActionSkip, Path: m.ProjectFile, Detail: "project file not found"})
		}
	}

	for _, rel := range replaceOrder(m.ReplaceFiles) {
		actions = append(actions, Action{Kind: ActionReplaceFile, Path: rel, Detail: "replace with fresh template"})
	}

	if len(m.LockCommand) > 0 {
		actions = append(actions, Action{
			Kind: ActionRegenerateLock, Path: ".", Detail: strings.Join(m.LockCommand, " "),
		})
	}

	return actions, nil
}

// replaceOrder puts README.md and CHANGELOG.md first, then the rest sorted.
func replaceOrder(files map[string]string) []string {
	rank := func(p string) int {
		switch p {
		case "README.md":
			return 0
		case "CHANGELOG.md":
			return 1
		}
		return 2
	}
	keys := make([]string, 0, len(files))
	for k := range files {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if rank(keys[i]) != rank(keys[j]) {
			return rank(keys[i]) < rank(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// CommandRunner runs a command in dir.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) error

// ExecRunner runs commands with os/exec, streaming output to stderr.
func ExecRunner(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Initializer plans and applies template initialization.
type Initializer struct {
	Root     string
	Manifest *Manifest
	Logger   *zap.Logger
	Run      CommandRunner
}

// Execute plans the initialization, logs every action, and applies them
// unless opts.DryRun is set.
func (in *Initializer) Execute(ctx context.Context, opts Options) ([]Action, error) {
	actions, err := Plan(in.Root, opts, in.Manifest)
	if err != nil {
		return nil, err
	}

	for _, a := range actions {
		fields := []zap.Field{zap.String("kind", string(a.Kind)), zap.String("path", a.Path), zap.String("detail", a.Detail)}
		switch {
		case a.Kind == ActionSkip:
			in.Logger.Warn("skipping", fields...)
		case opts.DryRun:
			in.Logger.Info("would apply", fields...)
		default:
			in.Logger.Info("planned", fields...)
		}
	}

	if opts.DryRun {
		return actions, nil
	}
	return actions, in.Apply(ctx, opts, actions)
}

// Apply performs actions in order and stops at the first failure.
func (in *Initializer) Apply(ctx context.Context, opts Options, actions []Action) error {
	replacer := newReplacer(Replacements(in.Manifest, opts))
	data := map[string]string{"Package": opts.PackageName, "Repo": opts.RepoName, "Owner": opts.Owner}

	for _, a := range actions {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(in.Root, a.Path)

		var err error
		switch a.Kind {
		case ActionSkip:
			continue
		case ActionSubstitute:
			err = rewriteFile(path, func(b []byte) ([]byte, error) {
				return []byte(replacer.Replace(string(b))), nil
			})
		case ActionRenameDir:
			err = os.Rename(path, filepath.Join(in.Root, a.Target))
		case ActionStripAuthors:
			err = rewriteFile(path, func(b []byte) ([]byte, error) { return stripAuthors(a.Path, b) })
		case ActionResetVersion:
			err = rewriteFile(path, func(b []byte) ([]byte, error) { return resetVersion(a.Path, b) })
		case ActionReplaceFile:
			err = writeTemplate(path, a.Path, in.Manifest.ReplaceFiles[a.Path], data)
		case ActionRegenerateLock:
			run := in.Run
			if run == nil {
				run = ExecRunner
			}
			err = run(ctx, in.Root, in.Manifest.LockCommand[0], in.Manifest.LockCommand[1:]...)
		default:
			err = fmt.Errorf("unknown action kind %q", a.Kind)
		}
		if err != nil {
			return fmt.Errorf("%s %s: %w", a.Kind, a.Path, err)
		}
		in.Logger.Info("applied", zap.String("kind", string(a.Kind)), zap.String("path", a.Path))
	}
	return nil
}

func rewriteFile(path string, fn func([]byte) ([]byte, error)) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out, err := fn(data)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, info.Mode().Perm())
}

func writeTemplate(path, name, source string, data map[string]string) error {
	tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).Parse(source)
	if err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

var (
	tomlAuthorsRegex = regexp.MustCompile(`(?ms)^authors\s*=\s*\[.*?\]\s*\n`)
	tomlVersionRegex = regexp.MustCompile(`(?m)^version\s*=\s*"[^"]*"`)
)

// stripAuthors removes the authors field. package.json is rewritten as a
// generic map so unknown fields survive; TOML files are edited in place.
func stripAuthors(name string, data []byte) ([]byte, error) {
	if strings.HasSuffix(name, ".json") {
		return editJSON(data, func(doc map[string]any) {
			delete(doc, "author")
			delete(doc, "authors")
			delete(doc, "contributors")
		})
	}
	return tomlAuthorsRegex.ReplaceAll(data, nil), nil
}

// resetVersion sets the first version field to InitialVersion.
func resetVersion(name string, data []byte) ([]byte, error) {
	if strings.HasSuffix(name, ".json") {
		return editJSON(data, func(doc map[string]any) { doc["version"] = InitialVersion })
	}
	replaced := false
	return tomlVersionRegex.ReplaceAllFunc(data, func(m []byte) []byte {
		if replaced {
			return m
		}
		replaced = true
		return []byte(`version = "` + InitialVersion + `"`)
	}), nil
}

func editJSON(data []byte, edit func(map[string]any)) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	edit(doc)
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
