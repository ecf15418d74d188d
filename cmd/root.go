package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atelier-agents/codeforge/engine/config"
	"github.com/atelier-agents/codeforge/engine/llm"
	"github.com/atelier-agents/codeforge/engine/logging"
	"github.com/atelier-agents/codeforge/engine/observability"
	"github.com/atelier-agents/codeforge/engine/stage"
	"github.com/atelier-agents/codeforge/engine/workflow"
)

var (
	flagConfig string
	flagDebug  bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "codeforge",
		Short: "LLM-driven software construction workflow",
		Long: `Codeforge turns a task description into a working project through a
staged workflow: requirements analysis, design, structure proposal, code
generation, sandboxed completeness verification and documentation.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to YAML config file")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	root.AddCommand(newWorkflowCmd())
	root.AddCommand(newInteractiveCmd())
	root.AddCommand(newCompileCmd())
	return root
}

// buildOrchestrator wires the engine from configuration. The returned cleanup
// flushes logs and traces; call it before exit.
func buildOrchestrator(ctx context.Context, folder string) (*workflow.Orchestrator, func(), error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(flagDebug)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() { _ = logger.Sync() }
	if cfg.OTLPEndpoint != "" {
		shutdown, err := observability.InitTracer("codeforge", cfg.OTLPEndpoint)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanup = func() {
			_ = shutdown(context.Background())
			_ = logger.Sync()
		}
	}

	client, err := llm.NewOllamaClient(cfg.Model, cfg.Temperature, cfg.MaxTokens)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := client.Ping(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("collaborator check failed: %w", err)
	}

	o := &workflow.Orchestrator{
		Executor: &stage.Executor{
			LLM:               client,
			Prompts:           workflow.BuiltinPrompts{},
			Logger:            logger,
			MaxRepairAttempts: cfg.MaxRepairAttempts,
		},
		Sandbox:          newDockerRunner(),
		Logger:           logger,
		MaxIterations:    cfg.MaxIterations,
		ExecutionTimeout: cfg.ExecutionTimeout,
		Store:            &dirStore{Root: folder},
	}
	return o, cleanup, nil
}
