package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/shinji-kodama/blog-agent/internal/config"
	"github.com/shinji-kodama/blog-agent/internal/github"
	"github.com/shinji-kodama/blog-agent/internal/llm"
	"github.com/shinji-kodama/blog-agent/internal/llm/llmtest"
	"github.com/shinji-kodama/blog-agent/internal/store"
	"github.com/shinji-kodama/blog-agent/internal/tools"
)

const draft = "---\ntitle: Hello Go\nslug: hello-go\n---\n\nSECRET-DRAFT-BODY\n"

var fixedNow = func() time.Time { return time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC) }

// fakeGitHubServer accepts every publish step and returns a fixed PR URL.
func fakeGitHubServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/git/ref/"):
			_ = json.NewEncoder(w).Encode(map[string]any{"object": map[string]string{"sha": "abc"}})
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/contents/"):
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]string{"default_branch": "main"})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/pulls"):
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{"html_url": "https://github.com/acme/blogs/pull/9"})
		default:
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func testEnv() config.AgentEnv {
	env := config.LoadAgentEnv(config.MapLookup(map[string]string{
		config.EnvGitHubToken: "tok",
		config.EnvRepoOwner:   "acme",
	}))
	return env
}

func newTestRunner(t *testing.T, model llm.Model, st store.Store, logger *zap.Logger) *Runner {
	t.Helper()
	server := fakeGitHubServer(t)
	runner, err := NewBlogRunner(model, st, testEnv(), logger, github.WithBaseURL(server.URL))
	require.NoError(t, err)
	runner.Now = fixedNow
	return runner
}

func scriptedPipeline() *llmtest.ScriptedModel {
	return llmtest.NewScriptedModel(
		llmtest.Call(tools.SaveBlogContentName, map[string]any{"content": draft, "title": "Hello Go", "slug": "hello-go"}),
		llmtest.Text("The blog is ready for publishing."),
		llmtest.Call(tools.PublishBlogName, map[string]any{
			"branch_name":    "blog/hello-go",
			"file_name":      "hello-go.md",
			"commit_message": "Add blog: Hello Go",
			"pr_title":       "Blog: Hello Go",
			"pr_body":        "This PR adds a new blog post: Hello Go",
		}),
		llmtest.Text("Published: https://github.com/acme/blogs/pull/9"),
	)
}

func TestBlogRunner_AuthorFromEnv(t *testing.T) {
	server := fakeGitHubServer(t)
	env := testEnv()
	env.Author = "Ada Lovelace"
	model := scriptedPipeline()
	runner, err := NewBlogRunner(model, store.NewMemoryStore(), env, zap.NewNop(), github.WithBaseURL(server.URL))
	require.NoError(t, err)
	runner.Now = fixedNow

	_, err = runner.Run(context.Background(), "", "Write about Go generics")
	require.NoError(t, err)

	writer := model.Requests()[0].System
	assert.Contains(t, writer, "author: Ada Lovelace")
	assert.NotContains(t, writer, "author: Blog Agent")
}

// TestBlogRunner_EndToEnd drives the writer and the publisher with a
// scripted model and checks the hand-off between them.
func TestBlogRunner_EndToEnd(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	model := scriptedPipeline()
	runner := newTestRunner(t, model, st, zap.NewNop())

	result, err := runner.Run(ctx, "", "Write about Go generics")
	require.NoError(t, err)

	require.Len(t, result.Outputs, 2)
	assert.Equal(t, WriterAgentName, result.Outputs[0].Agent)
	assert.Equal(t, PublisherAgentName, result.Outputs[1].Agent)
	assert.Equal(t, "Published: https://github.com/acme/blogs/pull/9", result.FinalText)
	assert.Equal(t, "Hello Go", result.State[tools.StateTitle])
	assert.Equal(t, "hello-go", result.State[tools.StateSlug])

	requests := model.Requests()
	require.Len(t, requests, 4)

	// Writer sees the user message and the date in its instruction.
	assert.Equal(t, "Write about Go generics", requests[0].Contents[0].Text)
	assert.Contains(t, requests[0].System, "Today's date: 2026-03-04")
	assert.Contains(t, requests[0].System, "author: Blog Agent")
	assert.Equal(t, tools.SaveBlogContentName, requests[0].Tools[0].Name)

	// Publisher starts from the user message only, with metadata from state.
	publisherFirst := requests[2]
	require.Len(t, publisherFirst.Contents, 1)
	assert.Equal(t, llm.RoleUser, publisherFirst.Contents[0].Role)
	assert.Equal(t, "Write about Go generics", publisherFirst.Contents[0].Text)
	assert.Contains(t, publisherFirst.System, `branch_name: "blog/hello-go"`)
	for _, req := range requests[2:] {
		for _, c := range req.Contents {
			assert.NotContains(t, c.Text, "SECRET-DRAFT-BODY", "publisher must not see the draft")
		}
	}

	// The publisher's second turn carries its own tool result.
	last := requests[3].Contents[len(requests[3].Contents)-1]
	require.Equal(t, llm.RoleTool, last.Role)
	assert.Equal(t, "success", last.ToolResults[0].Response["status"])

	sess, err := st.GetSession(ctx, result.SessionID)
	require.NoError(t, err)
	assert.NotNil(t, sess.RememberedAt, "session is archived after the publisher finishes")

	kinds := make([]store.EventKind, 0, len(sess.Events))
	for _, ev := range sess.Events {
		kinds = append(kinds, ev.Kind)
		assert.Equal(t, result.InvocationID, ev.InvocationID)
	}
	assert.Equal(t, []store.EventKind{
		store.EventMessage,                        // user
		store.EventToolCall, store.EventToolResult, // writer save
		store.EventMessage,                        // writer done
		store.EventToolCall, store.EventToolResult, // publisher
		store.EventMessage,                        // publisher done
	}, kinds)
}

func TestRunner_ReusesSession(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	model := llmtest.NewScriptedModel(llmtest.Text("one"), llmtest.Text("two"))
	runner := &Runner{
		AppName: "test",
		Root:    &LlmAgent{AgentName: "echo", Model: model, Instruction: "Be helpful."},
		Store:   st,
		Logger:  zap.NewNop(),
		Now:     fixedNow,
	}

	first, err := runner.Run(ctx, "fixed-id", "hello")
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", first.SessionID)

	second, err := runner.Run(ctx, "fixed-id", "again")
	require.NoError(t, err)
	assert.Equal(t, "two", second.FinalText)

	// Default history includes the earlier exchange.
	req := model.Requests()[1]
	require.Len(t, req.Contents, 3)
	assert.Equal(t, "hello", req.Contents[0].Text)
	assert.Equal(t, llm.RoleModel, req.Contents[1].Role)
	assert.Equal(t, "one", req.Contents[1].Text)
	assert.Equal(t, "again", req.Contents[2].Text)
}

func TestRunner_EmptyMessage(t *testing.T) {
	runner := &Runner{Store: store.NewMemoryStore(), Logger: zap.NewNop()}
	_, err := runner.Run(context.Background(), "", "")
	assert.Error(t, err)
}

func TestLlmAgent_MaxTurns(t *testing.T) {
	set, err := tools.NewSet(zap.NewNop(), tools.NewSaveBlogContent(zap.NewNop()))
	require.NoError(t, err)

	args := map[string]any{"content": "x", "title": "t", "slug": "s"}
	var responses []*llm.Response
	for i := 0; i < 3; i++ {
		responses = append(responses, llmtest.Call(tools.SaveBlogContentName, args))
	}

	runner := &Runner{
		AppName: "test",
		Root:    &LlmAgent{AgentName: "looper", Model: llmtest.NewScriptedModel(responses...), Instruction: "x", Tools: set, MaxTurns: 3},
		Store:   store.NewMemoryStore(),
		Logger:  zap.NewNop(),
	}

	_, err = runner.Run(context.Background(), "", "go")
	assert.True(t, errors.Is(err, ErrMaxTurns))
}

func TestLlmAgent_ModelError(t *testing.T) {
	model := llmtest.NewScriptedModel()
	model.FailNext(errors.New("quota exhausted"))

	runner := &Runner{
		AppName: "test",
		Root:    &LlmAgent{AgentName: "a", Model: model, Instruction: "x"},
		Store:   store.NewMemoryStore(),
		Logger:  zap.NewNop(),
	}

	_, err := runner.Run(context.Background(), "", "go")
	assert.ErrorContains(t, err, "quota exhausted")
}

// TestSequentialAgent_StopsOnFailure verifies the publisher never runs when
// its instruction cannot render because the writer saved nothing.
func TestSequentialAgent_StopsOnFailure(t *testing.T) {
	model := llmtest.NewScriptedModel(llmtest.Text("I forgot to save."))
	runner := newTestRunner(t, model, store.NewMemoryStore(), zap.NewNop())

	_, err := runner.Run(context.Background(), "", "write")
	assert.ErrorContains(t, err, "writer must save first")
	assert.Len(t, model.Requests(), 1)
}

func TestEventsToContents(t *testing.T) {
	events := []store.Event{
		{Author: "user", Kind: store.EventMessage, Text: "topic"},
		{Author: "blog_writer", Kind: store.EventToolCall, ToolName: "save_blog_content", Payload: map[string]any{"slug": "s"}},
		{Author: "blog_writer", Kind: store.EventToolResult, ToolName: "save_blog_content", Payload: map[string]any{"status": "success"}},
		{Author: "blog_writer", Kind: store.EventMessage, Text: "ready"},
		{Author: "blog_publisher", Kind: store.EventMessage, Text: "published"},
	}

	got := eventsToContents(events, "blog_publisher")
	require.Len(t, got, 3)
	assert.Equal(t, llm.Content{Role: llm.RoleUser, Text: "topic"}, got[0])
	assert.Equal(t, llm.Content{Role: llm.RoleUser, Text: "For context: [blog_writer] said: ready"}, got[1])
	assert.Equal(t, llm.RoleModel, got[2].Role)

	got = eventsToContents(events, "blog_writer")
	require.Len(t, got, 5)
	assert.Equal(t, "save_blog_content", got[1].ToolCalls[0].Name)
	assert.Equal(t, llm.RoleTool, got[2].Role)
	assert.Equal(t, "For context: [blog_publisher] said: published", got[4].Text)
}

func TestLoggingCallbacks(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	model := scriptedPipeline()
	runner := newTestRunner(t, model, store.NewMemoryStore(), zap.New(core))

	_, err := runner.Run(context.Background(), "", "Write about Go")
	require.NoError(t, err)

	assert.Equal(t, 2, logs.FilterMessage("agent started").Len())
	assert.Equal(t, 2, logs.FilterMessage("agent finished").Len())
	assert.Equal(t, 4, logs.FilterMessage("model request").Len())
	assert.Equal(t, 2, logs.FilterMessage("tool succeeded").Len())

	for _, entry := range logs.All() {
		for _, f := range entry.Context {
			assert.NotContains(t, f.String, "SECRET-DRAFT-BODY", "draft bodies must not be logged")
		}
	}
}
