package agent

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/shinji-kodama/blog-agent/internal/config"
	"github.com/shinji-kodama/blog-agent/internal/github"
	"github.com/shinji-kodama/blog-agent/internal/llm"
	"github.com/shinji-kodama/blog-agent/internal/prompt"
	"github.com/shinji-kodama/blog-agent/internal/store"
	"github.com/shinji-kodama/blog-agent/internal/tools"
)

// Agent names of the blog pipeline.
const (
	RootAgentName      = "blog_agent"
	WriterAgentName    = "blog_writer"
	PublisherAgentName = "blog_publisher"
)

// NewBlogPipeline wires the writer and the publisher into a sequential
// agent. The publisher runs without conversation history so the draft body
// never enters its context; it reads the draft through its tool instead.
func NewBlogPipeline(model llm.Model, env config.AgentEnv, logger *zap.Logger, ghOpts ...github.Option) (*SequentialAgent, error) {
	writerTools, err := tools.NewSet(logger, tools.NewSaveBlogContent(logger))
	if err != nil {
		return nil, fmt.Errorf("writer tools: %w", err)
	}

	repo := github.Repo{Owner: env.RepoOwner, Name: env.RepoName, ContentPath: env.ContentPath}
	publisherTools, err := tools.NewSet(logger, tools.NewPublishBlog(repo, env.GitHubToken, logger, ghOpts...))
	if err != nil {
		return nil, fmt.Errorf("publisher tools: %w", err)
	}

	logging := LoggingCallbacks(logger)

	writer := &LlmAgent{
		AgentName:        WriterAgentName,
		AgentDescription: prompt.WriterDescription(),
		Model:            model,
		Instruction:      prompt.WriterInstruction,
		Tools:            writerTools,
		IncludeContents:  IncludeDefault,
		Callbacks:        []Callbacks{logging},
	}

	publisher := &LlmAgent{
		AgentName:        PublisherAgentName,
		AgentDescription: prompt.PublisherDescription(),
		Model:            model,
		Instruction:      prompt.PublisherInstruction,
		Tools:            publisherTools,
		IncludeContents:  IncludeNone,
		Callbacks:        []Callbacks{logging, RememberSession()},
	}

	return &SequentialAgent{
		AgentName:        RootAgentName,
		AgentDescription: prompt.RootDescription(),
		SubAgents:        []Agent{writer, publisher},
	}, nil
}

// NewBlogRunner builds a Runner for the blog pipeline.
func NewBlogRunner(model llm.Model, st store.Store, env config.AgentEnv, logger *zap.Logger, ghOpts ...github.Option) (*Runner, error) {
	root, err := NewBlogPipeline(model, env, logger, ghOpts...)
	if err != nil {
		return nil, err
	}
	return &Runner{
		AppName:           env.AppName,
		Root:              root,
		Store:             st,
		GlobalInstruction: prompt.GlobalInstruction,
		Author:            env.Author,
		Logger:            logger,
	}, nil
}
