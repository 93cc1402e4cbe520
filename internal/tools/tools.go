// Package tools implements the functions the agents may call and the
// machinery to declare them to a model and execute them safely.
//
// Every tool publishes a JSON Schema for its arguments. A Set compiles the
// schemas once and validates each model-supplied call before the tool runs,
// so tools can assume well-typed input.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/shinji-kodama/blog-agent/internal/llm"
	"github.com/shinji-kodama/blog-agent/internal/model"
)

// Result is the JSON object returned to the model. It always carries a
// "status" of "success" or "error" and a human-readable "message".
type Result map[string]any

// Status returns the result status.
func (r Result) Status() model.ToolStatus {
	s, _ := r["status"].(string)
	return model.ToolStatus(s)
}

// Message returns the result message.
func (r Result) Message() string {
	m, _ := r["message"].(string)
	return m
}

// ErrorResult builds a failed result.
func ErrorResult(message string) Result {
	return Result{"status": model.ToolError.String(), "message": message}
}

// Tool is a function the model can call.
type Tool interface {
	// Name is the function name declared to the model. It must be unique
	// within a Set.
	Name() string
	// Description tells the model when to call the tool.
	Description() string
	// Schema returns the JSON Schema of the argument object.
	Schema() map[string]any
	// Run executes a call whose args already passed Schema. Failures are
	// reported through the Result, never as a Go error.
	Run(ctx context.Context, tc *Context, args map[string]any) Result
}

type entry struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Set is a validated collection of tools.
type Set struct {
	entries map[string]*entry
	logger  *zap.Logger
}

// NewSet compiles the argument schema of every tool. Duplicate names and
// invalid schemas are rejected.
func NewSet(logger *zap.Logger, tools ...Tool) (*Set, error) {
	s := &Set{entries: make(map[string]*entry, len(tools)), logger: logger}

	for _, t := range tools {
		if _, dup := s.entries[t.Name()]; dup {
			return nil, fmt.Errorf("duplicate tool %q", t.Name())
		}

		raw, err := json.Marshal(t.Schema())
		if err != nil {
			return nil, fmt.Errorf("tool %s: failed to encode schema: %w", t.Name(), err)
		}

		url := "mem://tools/" + t.Name() + ".json"
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("tool %s: invalid schema: %w", t.Name(), err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("tool %s: invalid schema: %w", t.Name(), err)
		}

		s.entries[t.Name()] = &entry{tool: t, schema: schema}
	}
	return s, nil
}

// Names returns the tool names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns the declarations sent to the model, sorted by name.
func (s *Set) Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(s.entries))
	for _, name := range s.Names() {
		t := s.entries[name].tool
		specs = append(specs, llm.ToolSpec{Name: t.Name(), Description: t.Description(), Parameters: t.Schema()})
	}
	return specs
}

// Call validates args and runs the named tool. Failures never surface as Go
// errors; they become error results the model can read.
func (s *Set) Call(ctx context.Context, tc *Context, name string, args map[string]any) Result {
	e, ok := s.entries[name]
	if !ok {
		return ErrorResult(fmt.Sprintf("Unknown tool %q (available: %s)", name, strings.Join(s.Names(), ", ")))
	}

	normalized, err := normalize(args)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Invalid arguments for %s: %v", name, err))
	}
	if err := e.schema.Validate(normalized); err != nil {
		s.logger.Warn("tool arguments rejected", zap.String("tool", name), zap.Error(err))
		return ErrorResult(fmt.Sprintf("Invalid arguments for %s: %v", name, err))
	}

	return e.tool.Run(ctx, tc, normalized.(map[string]any))
}

// normalize round-trips args through JSON so numbers and nested values have
// the types the schema validator expects.
func normalize(args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// stringArg reads a string argument already checked by the schema.
func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// stringProp is a schema fragment for a required, non-empty string.
func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "minLength": 1, "description": description}
}
