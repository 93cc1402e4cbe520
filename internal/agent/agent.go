// Package agent runs LLM agents against a session.
//
// An LlmAgent loops between its model and its tools until the model answers
// with plain text. A SequentialAgent runs sub-agents in order over the same
// session, which is how the blog pipeline hands a draft from the writer to
// the publisher. The Runner owns session bookkeeping around a run.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shinji-kodama/blog-agent/internal/llm"
	"github.com/shinji-kodama/blog-agent/internal/prompt"
	"github.com/shinji-kodama/blog-agent/internal/store"
	"github.com/shinji-kodama/blog-agent/internal/tools"
)

// DefaultMaxTurns bounds the model/tool loop of a single agent.
const DefaultMaxTurns = 8

// ErrMaxTurns is returned when an agent keeps calling tools past its limit.
var ErrMaxTurns = errors.New("agent exceeded maximum turns")

// IncludeContents controls how much history an agent sees.
type IncludeContents string

const (
	// IncludeDefault sends the session history to the model.
	IncludeDefault IncludeContents = "default"

	// IncludeNone sends only the current user message. The agent still sees
	// its own tool calls and results within the run.
	IncludeNone IncludeContents = "none"
)

// Agent is a runnable unit of the pipeline.
type Agent interface {
	Name() string
	Description() string
	Run(ctx context.Context, inv *Invocation) error
}

// Output is the final text produced by one agent.
type Output struct {
	Agent string `json:"agent"`
	Text  string `json:"text"`
}

// Invocation carries the state of one Runner.Run call through the agent tree.
type Invocation struct {
	ID          string
	Session     *store.Session
	UserMessage string
	Store       store.Store
	Logger      *zap.Logger

	// State is the live session state. Tools update it in place so later
	// agents render their instructions from fresh values.
	State map[string]string

	// GlobalInstruction is a template prepended to every agent instruction.
	GlobalInstruction string
	Now               func() time.Time

	// Author fills the frontmatter author in the writer's instruction.
	Author string

	Outputs []Output
	Usage   llm.Usage
}

func (inv *Invocation) appendEvent(ctx context.Context, ev store.Event) error {
	ev.InvocationID = inv.ID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = inv.Now().UTC()
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if err := inv.Store.AppendEvent(ctx, inv.Session.ID, ev); err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	inv.Session.Events = append(inv.Session.Events, ev)
	return nil
}

// LlmAgent is a model-driven agent with tools.
type LlmAgent struct {
	AgentName        string
	AgentDescription string
	Model            llm.Model
	// Instruction is a prompt template rendered with the session state.
	Instruction     string
	Tools           *tools.Set
	IncludeContents IncludeContents
	MaxTurns        int
	Callbacks       []Callbacks
}

func (a *LlmAgent) Name() string        { return a.AgentName }
func (a *LlmAgent) Description() string { return a.AgentDescription }

// Run executes the model/tool loop.
func (a *LlmAgent) Run(ctx context.Context, inv *Invocation) error {
	cc := &CallbackContext{AgentName: a.AgentName, Invocation: inv}

	for _, cb := range a.Callbacks {
		if cb.BeforeAgent != nil {
			cb.BeforeAgent(ctx, cc)
		}
	}

	text, err := a.loop(ctx, inv, cc)
	if err != nil {
		return fmt.Errorf("agent %s: %w", a.AgentName, err)
	}
	inv.Outputs = append(inv.Outputs, Output{Agent: a.AgentName, Text: text})

	for _, cb := range a.Callbacks {
		if cb.AfterAgent == nil {
			continue
		}
		if err := cb.AfterAgent(ctx, cc); err != nil {
			return fmt.Errorf("agent %s: after-agent callback: %w", a.AgentName, err)
		}
	}
	return nil
}

func (a *LlmAgent) loop(ctx context.Context, inv *Invocation, cc *CallbackContext) (string, error) {
	maxTurns := a.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	contents := a.history(inv)
	var specs []llm.ToolSpec
	if a.Tools != nil {
		specs = a.Tools.Specs()
	}

	for turn := 1; turn <= maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		system, err := a.systemInstruction(inv)
		if err != nil {
			return "", err
		}
		req := &llm.Request{System: system, Contents: contents, Tools: specs}

		for _, cb := range a.Callbacks {
			if cb.BeforeModel != nil {
				cb.BeforeModel(ctx, cc, req)
			}
		}
		resp, err := a.Model.Generate(ctx, req)
		if err != nil {
			return "", fmt.Errorf("model call failed: %w", err)
		}
		for _, cb := range a.Callbacks {
			if cb.AfterModel != nil {
				cb.AfterModel(ctx, cc, resp)
			}
		}
		inv.Usage.PromptTokens += resp.Usage.PromptTokens
		inv.Usage.CompletionTokens += resp.Usage.CompletionTokens

		if resp.Text != "" {
			if err := inv.appendEvent(ctx, store.Event{Author: a.AgentName, Kind: store.EventMessage, Text: resp.Text}); err != nil {
				return "", err
			}
		}
		if !resp.HasToolCalls() {
			return resp.Text, nil
		}

		contents = append(contents, llm.Content{Role: llm.RoleModel, Text: resp.Text, ToolCalls: resp.ToolCalls})
		results, err := a.runTools(ctx, inv, cc, resp.ToolCalls)
		if err != nil {
			return "", err
		}
		contents = append(contents, llm.Content{Role: llm.RoleTool, ToolResults: results})
	}

	return "", fmt.Errorf("%w (%d)", ErrMaxTurns, maxTurns)
}

func (a *LlmAgent) runTools(ctx context.Context, inv *Invocation, cc *CallbackContext, calls []llm.ToolCall) ([]llm.ToolResult, error) {
	results := make([]llm.ToolResult, 0, len(calls))
	tc := tools.NewContext(inv.Store, inv.Session.ID, inv.ID, a.AgentName, inv.State)

	for _, call := range calls {
		if err := inv.appendEvent(ctx, store.Event{
			Author: a.AgentName, Kind: store.EventToolCall, ToolName: call.Name, Payload: call.Args,
		}); err != nil {
			return nil, err
		}

		for _, cb := range a.Callbacks {
			if cb.BeforeTool != nil {
				cb.BeforeTool(ctx, cc, call.Name, call.Args)
			}
		}

		var result tools.Result
		if a.Tools == nil {
			result = tools.ErrorResult(fmt.Sprintf("Agent %s has no tools", a.AgentName))
		} else {
			result = a.Tools.Call(ctx, tc, call.Name, call.Args)
		}

		for _, cb := range a.Callbacks {
			if cb.AfterTool != nil {
				cb.AfterTool(ctx, cc, call.Name, call.Args, result)
			}
		}

		if err := inv.appendEvent(ctx, store.Event{
			Author: a.AgentName, Kind: store.EventToolResult, ToolName: call.Name, Payload: result,
		}); err != nil {
			return nil, err
		}
		results = append(results, llm.ToolResult{CallID: call.ID, Name: call.Name, Response: result})
	}
	return results, nil
}

func (a *LlmAgent) systemInstruction(inv *Invocation) (string, error) {
	data := prompt.Data{Today: inv.Now(), State: inv.State, Author: inv.Author}

	var global string
	if inv.GlobalInstruction != "" {
		out, err := prompt.Render("global", inv.GlobalInstruction, data)
		if err != nil {
			return "", err
		}
		global = out
	}

	own, err := prompt.Render(a.AgentName, a.Instruction, data)
	if err != nil {
		return "", err
	}
	return global + own, nil
}

// history builds the model contents that precede this agent's first turn.
func (a *LlmAgent) history(inv *Invocation) []llm.Content {
	if a.IncludeContents == IncludeNone {
		return []llm.Content{{Role: llm.RoleUser, Text: inv.UserMessage}}
	}
	return eventsToContents(inv.Session.Events, a.AgentName)
}

// eventsToContents converts the session log for agentName. The agent's own
// events keep their roles; messages from the user stay user turns; other
// agents' replies are presented as context in a user turn.
func eventsToContents(events []store.Event, agentName string) []llm.Content {
	var out []llm.Content
	for _, ev := range events {
		switch {
		case ev.Author == "user" && ev.Kind == store.EventMessage:
			out = append(out, llm.Content{Role: llm.RoleUser, Text: ev.Text})

		case ev.Author != agentName:
			if ev.Kind == store.EventMessage && ev.Text != "" {
				out = append(out, llm.Content{Role: llm.RoleUser, Text: fmt.Sprintf("For context: [%s] said: %s", ev.Author, ev.Text)})
			}

		case ev.Kind == store.EventMessage:
			out = append(out, llm.Content{Role: llm.RoleModel, Text: ev.Text})

		case ev.Kind == store.EventToolCall:
			out = append(out, llm.Content{Role: llm.RoleModel, ToolCalls: []llm.ToolCall{{Name: ev.ToolName, Args: ev.Payload}}})

		case ev.Kind == store.EventToolResult:
			out = append(out, llm.Content{Role: llm.RoleTool, ToolResults: []llm.ToolResult{{Name: ev.ToolName, Response: ev.Payload}}})
		}
	}
	return out
}

// SequentialAgent runs its sub-agents one after another. The first failure
// stops the sequence.
type SequentialAgent struct {
	AgentName        string
	AgentDescription string
	SubAgents        []Agent
}

func (s *SequentialAgent) Name() string        { return s.AgentName }
func (s *SequentialAgent) Description() string { return s.AgentDescription }

func (s *SequentialAgent) Run(ctx context.Context, inv *Invocation) error {
	for _, sub := range s.SubAgents {
		inv.Logger.Debug("starting sub-agent", zap.String("parent", s.AgentName), zap.String("agent", sub.Name()))
		if err := sub.Run(ctx, inv); err != nil {
			return err
		}
	}
	return nil
}
