// Package config resolves runtime configuration for the blog agent from
// environment variables.
//
// Two groups are defined: AgentEnv configures the model, the publishing
// target and persistence; ServerEnv configures the HTTP server. Both are
// built from a LookupFunc so tests never touch the real process environment.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable names read by this package.
const (
	EnvRootAgentModel    = "ROOT_AGENT_MODEL"
	EnvGoogleAPIKey      = "GOOGLE_API_KEY"
	EnvOpenRouterAPIKey  = "OPENROUTER_API_KEY"
	EnvGitHubToken       = "BLOG_GITHUB_TOKEN"
	EnvRepoOwner         = "BLOG_REPO_OWNER"
	EnvRepoName          = "BLOG_REPO_NAME"
	EnvContentPath       = "BLOG_CONTENT_PATH"
	EnvAuthor            = "BLOG_AUTHOR"
	EnvDatabaseURL       = "DATABASE_URL"
	EnvLangfusePublicKey = "LANGFUSE_PUBLIC_KEY"
	EnvLangfuseSecretKey = "LANGFUSE_SECRET_KEY"
	EnvLangfuseHost      = "LANGFUSE_HOST"
	EnvHost              = "HOST"
	EnvPort              = "PORT"
	EnvShutdownTimeout   = "SHUTDOWN_TIMEOUT"
)

// Defaults applied when the corresponding variable is unset or empty.
const (
	DefaultModel           = "gemini-2.5-flash"
	DefaultRepoOwner       = "queryplanner"
	DefaultRepoName        = "blogs"
	DefaultContentPath     = "src/data/blog"
	DefaultAppName         = "blog_agent"
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8000
	DefaultShutdownTimeout = 10 * time.Second
)

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// OSLookup reads from the process environment.
var OSLookup LookupFunc = os.LookupEnv

// MapLookup adapts a map to a LookupFunc.
func MapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func get(lookup LookupFunc, key, fallback string) string {
	if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

// AgentEnv holds everything the agent pipeline needs at runtime.
type AgentEnv struct {
	// Model is the model identifier from ROOT_AGENT_MODEL.
	Model string

	GoogleAPIKey     string
	OpenRouterAPIKey string

	// GitHubToken authenticates publish requests. Empty is allowed here;
	// the publish tool reports the missing token when it is invoked.
	GitHubToken string

	RepoOwner   string
	RepoName    string
	ContentPath string

	// Author is the frontmatter author the writer is told to use. Empty
	// leaves the instruction's default in place.
	Author string

	// DatabaseURL selects the session store. Empty means in-memory.
	DatabaseURL string

	AppName string

	// Langfuse credentials are carried so deployments can validate them;
	// no tracing exporter consumes them.
	LangfusePublicKey string
	LangfuseSecretKey string
	LangfuseHost      string
}

// LoadAgentEnv builds an AgentEnv from lookup, applying defaults.
func LoadAgentEnv(lookup LookupFunc) AgentEnv {
	return AgentEnv{
		Model:             get(lookup, EnvRootAgentModel, DefaultModel),
		GoogleAPIKey:      get(lookup, EnvGoogleAPIKey, ""),
		OpenRouterAPIKey:  get(lookup, EnvOpenRouterAPIKey, ""),
		GitHubToken:       get(lookup, EnvGitHubToken, ""),
		RepoOwner:         get(lookup, EnvRepoOwner, DefaultRepoOwner),
		RepoName:          get(lookup, EnvRepoName, DefaultRepoName),
		ContentPath:       strings.Trim(get(lookup, EnvContentPath, DefaultContentPath), "/"),
		Author:            get(lookup, EnvAuthor, ""),
		DatabaseURL:       get(lookup, EnvDatabaseURL, ""),
		AppName:           DefaultAppName,
		LangfusePublicKey: get(lookup, EnvLangfusePublicKey, ""),
		LangfuseSecretKey: get(lookup, EnvLangfuseSecretKey, ""),
		LangfuseHost:      get(lookup, EnvLangfuseHost, ""),
	}
}

// LangfuseEnabled reports whether both Langfuse keys are present.
func (e AgentEnv) LangfuseEnabled() bool {
	return e.LangfusePublicKey != "" && e.LangfuseSecretKey != ""
}

// ServerEnv configures the HTTP server.
type ServerEnv struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// Addr returns the listen address in host:port form.
func (e ServerEnv) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// LoadServerEnv builds a ServerEnv from lookup. Malformed numbers are
// reported instead of silently falling back to defaults.
func LoadServerEnv(lookup LookupFunc) (ServerEnv, error) {
	env := ServerEnv{
		Host:            get(lookup, EnvHost, DefaultHost),
		Port:            DefaultPort,
		ShutdownTimeout: DefaultShutdownTimeout,
	}

	if raw := get(lookup, EnvPort, ""); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port < 1 || port > 65535 {
			return ServerEnv{}, fmt.Errorf("invalid %s %q: must be 1-65535", EnvPort, raw)
		}
		env.Port = port
	}

	if raw := get(lookup, EnvShutdownTimeout, ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return ServerEnv{}, fmt.Errorf("invalid %s %q: must be a positive duration", EnvShutdownTimeout, raw)
		}
		env.ShutdownTimeout = d
	}

	return env, nil
}
