package deploy

import (
	"fmt"
	"io"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// DefaultScriptPath is the setup script's path inside the application
// repository.
const DefaultScriptPath = "scripts/setup-server.sh"

// ScriptURL returns the raw GitHub URL of the setup script at ref. Pinning
// ref to a tag or commit SHA keeps the reviewed script and the executed
// script identical.
func ScriptURL(repo, ref, path string) string {
	if ref == "" {
		ref = "main"
	}
	if path == "" {
		path = DefaultScriptPath
	}
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s", repo, ref, path)
}

var bootstrapTemplate = template.Must(template.New("bootstrap").Funcs(sprig.TxtFuncMap()).Parse(`Server bootstrap for {{ .Repo }}

The setup script installs Docker, creates the {{ .User | quote }} user and
authorizes the deploy key. Do not run it without reviewing it first.

1. Review the script:

     curl -fsSL {{ .URL }} | less

2. Run it on the server as root:

     curl -fsSL {{ .URL }} | sudo bash -s -- {{ .User }}

3. Add the deploy public key to ~{{ .User }}/.ssh/authorized_keys:

     blog-agent deploy keygen --out {{ .KeyPath }}
     ssh-copy-id -i {{ .KeyPath }}.pub {{ .User }}@<server>
{{- if ne .Ref "main" }}

The URL is pinned to {{ .Ref | quote }}.
{{- else }}

The URL follows the main branch; pass --ref with a tag or commit SHA to pin it.
{{- end }}
`))

// BootstrapInfo fills the bootstrap instructions.
type BootstrapInfo struct {
	Repo    string
	Ref     string
	URL     string
	User    string
	KeyPath string
}

// WriteBootstrap prints the review-before-run bootstrap instructions. It
// never executes anything.
func WriteBootstrap(w io.Writer, info BootstrapInfo) error {
	if info.Ref == "" {
		info.Ref = "main"
	}
	if info.URL == "" {
		info.URL = ScriptURL(info.Repo, info.Ref, "")
	}
	if info.User == "" {
		info.User = "deploy"
	}
	if info.KeyPath == "" {
		info.KeyPath = "~/.ssh/blog_agent_deploy"
	}
	return bootstrapTemplate.Execute(w, info)
}
