// Package deploy holds the deployment runbook as code: the catalogue of
// GitHub Actions secrets and variables the deploy workflow consumes, their
// validation and upload through the gh CLI, and the server bootstrap
// instructions.
package deploy

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/shinji-kodama/blog-agent/internal/config"
	"github.com/shinji-kodama/blog-agent/internal/logging"
	"github.com/shinji-kodama/blog-agent/internal/model"
)

// Kind says how a value is stored in GitHub Actions.
type Kind string

const (
	// KindSecret values are encrypted and never shown again.
	KindSecret Kind = "secret"

	// KindVariable values are plain configuration visible in the UI.
	KindVariable Kind = "variable"
)

// SecretSpec describes one value the deploy workflow reads.
type SecretSpec struct {
	Name        string `json:"name"`
	Kind        Kind   `json:"kind"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// Catalogue returns the values the deploy workflow consumes, in upload
// order: secrets first, then variables.
func Catalogue() []SecretSpec {
	return []SecretSpec{
		{Name: "SERVER_HOST", Kind: KindSecret, Required: true, Description: "deploy server hostname or IP"},
		{Name: "SERVER_USER", Kind: KindSecret, Required: true, Description: "SSH user on the deploy server"},
		{Name: "SSH_PRIVATE_KEY", Kind: KindSecret, Required: true, Description: "private half of the deploy key"},
		{Name: config.EnvDatabaseURL, Kind: KindSecret, Required: true, Description: "session database URL"},
		{Name: config.EnvOpenRouterAPIKey, Kind: KindSecret, Required: true, Description: "OpenRouter API key"},
		{Name: config.EnvGitHubToken, Kind: KindSecret, Required: true, Description: "token used to open blog pull requests"},
		{Name: config.EnvLangfusePublicKey, Kind: KindSecret, Description: "Langfuse public key"},
		{Name: config.EnvLangfuseSecretKey, Kind: KindSecret, Description: "Langfuse secret key"},
		{Name: config.EnvRootAgentModel, Kind: KindVariable, Required: true, Description: "model name for the agents"},
		{Name: config.EnvLangfuseHost, Kind: KindVariable, Description: "Langfuse host URL"},
		{Name: config.EnvRepoOwner, Kind: KindVariable, Description: "owner of the blog repository"},
		{Name: config.EnvRepoName, Kind: KindVariable, Description: "name of the blog repository"},
	}
}

// Known reports whether name is in the catalogue.
func Known(name string) bool {
	for _, s := range Catalogue() {
		if s.Name == name {
			return true
		}
	}
	return false
}

// Value is a resolved catalogue entry.
type Value struct {
	Spec  SecretSpec
	Value string
}

// Resolve looks each catalogue entry up in the given sources, first match
// wins. Entries with no value anywhere resolve to "".
func Resolve(specs []SecretSpec, sources ...config.LookupFunc) []Value {
	values := make([]Value, 0, len(specs))
	for _, spec := range specs {
		v := Value{Spec: spec}
		for _, lookup := range sources {
			if s, ok := lookup(spec.Name); ok && s != "" {
				v.Value = s
				break
			}
		}
		values = append(values, v)
	}
	return values
}

// Validate splits resolved values into those to upload and optional ones
// to skip. Every required value must be non-empty; otherwise an
// ExitConfigInvalid error names all missing entries.
func Validate(values []Value) (present []Value, skipped []SecretSpec, err error) {
	var missing []string
	for _, v := range values {
		switch {
		case v.Value != "":
			present = append(present, v)
		case v.Spec.Required:
			missing = append(missing, v.Spec.Name)
		default:
			skipped = append(skipped, v.Spec)
		}
	}
	if len(missing) > 0 {
		return nil, nil, model.NewCLIError(model.ExitConfigInvalid,
			fmt.Sprintf("missing required deployment values: %s", strings.Join(missing, ", ")))
	}
	return present, skipped, nil
}

// GHRunner runs the gh CLI with stdin as its standard input.
type GHRunner func(ctx context.Context, stdin string, args ...string) ([]byte, error)

// ExecGH runs the gh binary with os/exec.
func ExecGH(ctx context.Context, stdin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	cmd.Stdin = strings.NewReader(stdin)
	return cmd.CombinedOutput()
}

// Uploader pushes values to a repository's Actions secrets and variables.
type Uploader struct {
	// Repo is "owner/name".
	Repo   string
	DryRun bool
	Run    GHRunner
	Out    io.Writer
	Logger *zap.Logger
}

// Args returns the gh arguments that store v. The value itself is passed
// on stdin so it never appears in the process list.
func (u *Uploader) Args(v Value) []string {
	return []string{string(v.Spec.Kind), "set", v.Spec.Name, "--repo", u.Repo}
}

// Upload stores every value, in order, stopping at the first failure.
// In dry-run mode each intended command is printed with its value masked
// and nothing runs.
func (u *Uploader) Upload(ctx context.Context, values []Value) error {
	run := u.Run
	if run == nil {
		run = ExecGH
	}

	for _, v := range values {
		args := u.Args(v)
		display := fmt.Sprintf("gh %s  # %s", strings.Join(args, " "), maskValue(v.Value))

		if u.DryRun {
			fmt.Fprintf(u.Out, "[dry-run] %s\n", display)
			continue
		}

		u.Logger.Debug("setting value", zap.String("name", v.Spec.Name), zap.String("kind", string(v.Spec.Kind)))
		if out, err := run(ctx, v.Value, args...); err != nil {
			return model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("failed to set %s %s: %s", v.Spec.Kind, v.Spec.Name, strings.TrimSpace(string(out))), err)
		}
		fmt.Fprintf(u.Out, "set %s %s\n", v.Spec.Kind, v.Spec.Name)
	}
	return nil
}

// ValueLookup adapts resolved values to a config.LookupFunc.
func ValueLookup(values []Value) config.LookupFunc {
	m := make(map[string]string, len(values))
	for _, v := range values {
		if v.Value != "" {
			m[v.Spec.Name] = v.Value
		}
	}
	return config.MapLookup(m)
}

// Names returns the entry names, sorted.
func Names(specs []SecretSpec) []string {
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// maskValue hides a value for display. Multi-line values such as private
// keys only report their size.
func maskValue(v string) string {
	if strings.Contains(v, "\n") {
		return fmt.Sprintf("(%d bytes, multi-line)", len(v))
	}
	return logging.Mask(v)
}
