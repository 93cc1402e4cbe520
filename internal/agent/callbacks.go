package agent

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shinji-kodama/blog-agent/internal/llm"
	"github.com/shinji-kodama/blog-agent/internal/model"
	"github.com/shinji-kodama/blog-agent/internal/tools"
)

// CallbackContext identifies the agent and invocation a callback fires for.
type CallbackContext struct {
	AgentName  string
	Invocation *Invocation
}

// Callbacks are optional hooks around agent, model and tool execution.
// Only AfterAgent may fail the run.
type Callbacks struct {
	BeforeAgent func(ctx context.Context, cc *CallbackContext)
	AfterAgent  func(ctx context.Context, cc *CallbackContext) error
	BeforeModel func(ctx context.Context, cc *CallbackContext, req *llm.Request)
	AfterModel  func(ctx context.Context, cc *CallbackContext, resp *llm.Response)
	BeforeTool  func(ctx context.Context, cc *CallbackContext, name string, args map[string]any)
	AfterTool   func(ctx context.Context, cc *CallbackContext, name string, args map[string]any, result tools.Result)
}

// LoggingCallbacks writes a structured log line at every hook. Tool
// arguments are summarized by key so draft bodies never reach the logs.
func LoggingCallbacks(logger *zap.Logger) Callbacks {
	// Start times are keyed by invocation and agent; concurrent runs share
	// one callback set.
	var starts sync.Map
	mark := func(kind string, cc *CallbackContext) {
		starts.Store(kind+"/"+cc.Invocation.ID+"/"+cc.AgentName, time.Now())
	}
	since := func(kind string, cc *CallbackContext) time.Duration {
		v, ok := starts.LoadAndDelete(kind + "/" + cc.Invocation.ID + "/" + cc.AgentName)
		if !ok {
			return 0
		}
		return time.Since(v.(time.Time))
	}

	base := func(cc *CallbackContext) []zap.Field {
		return []zap.Field{
			zap.String("agent", cc.AgentName),
			zap.String("invocation", cc.Invocation.ID),
			zap.String("session", cc.Invocation.Session.ID),
		}
	}

	return Callbacks{
		BeforeAgent: func(_ context.Context, cc *CallbackContext) {
			mark("agent", cc)
			logger.Info("agent started", base(cc)...)
		},
		AfterAgent: func(_ context.Context, cc *CallbackContext) error {
			fields := append(base(cc), zap.Duration("elapsed", since("agent", cc)))
			logger.Info("agent finished", fields...)
			return nil
		},
		BeforeModel: func(_ context.Context, cc *CallbackContext, req *llm.Request) {
			mark("model", cc)
			fields := append(base(cc),
				zap.Int("contents", len(req.Contents)),
				zap.Int("system_chars", len(req.System)),
				zap.Int("tools", len(req.Tools)))
			logger.Debug("model request", fields...)
		},
		AfterModel: func(_ context.Context, cc *CallbackContext, resp *llm.Response) {
			names := make([]string, 0, len(resp.ToolCalls))
			for _, c := range resp.ToolCalls {
				names = append(names, c.Name)
			}
			fields := append(base(cc),
				zap.Duration("elapsed", since("model", cc)),
				zap.Int("text_chars", len(resp.Text)),
				zap.Strings("tool_calls", names),
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens))
			logger.Debug("model response", fields...)
		},
		BeforeTool: func(_ context.Context, cc *CallbackContext, name string, args map[string]any) {
			keys := make([]string, 0, len(args))
			for k := range args {
				keys = append(keys, k)
			}
			fields := append(base(cc), zap.String("tool", name), zap.Strings("arg_keys", keys))
			logger.Info("tool call", fields...)
		},
		AfterTool: func(_ context.Context, cc *CallbackContext, name string, _ map[string]any, result tools.Result) {
			fields := append(base(cc),
				zap.String("tool", name),
				zap.String("status", result.Status().String()),
				zap.String("message", result.Message()))
			if result.Status() == model.ToolError {
				logger.Warn("tool failed", fields...)
				return
			}
			logger.Info("tool succeeded", fields...)
		},
	}
}

// RememberSession archives the session to long-term memory once the agent
// completes.
func RememberSession() Callbacks {
	return Callbacks{
		AfterAgent: func(ctx context.Context, cc *CallbackContext) error {
			return cc.Invocation.Store.Remember(ctx, cc.Invocation.Session.ID)
		},
	}
}
