package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/atelier-agents/codeforge/engine/workflow"
)

func newCompileCmd() *cobra.Command {
	var folder string

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Build and inspect the workflow graph without running it",
		Long: `Compile mode assembles the workflow graph and writes its mermaid and
JSON serializations. No model or sandbox call is made.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The orchestrator is not needed: compiling is pure topology.
			g := workflow.BuildGraph()

			if err := os.MkdirAll(folder, 0o755); err != nil {
				return fmt.Errorf("failed to create output folder: %w", err)
			}

			mermaidPath := filepath.Join(folder, "workflow_graph.mmd")
			if err := os.WriteFile(mermaidPath, []byte(g.Mermaid()), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", mermaidPath, err)
			}

			data, err := json.MarshalIndent(g, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to serialize graph: %w", err)
			}
			jsonPath := filepath.Join(folder, "workflow_graph.json")
			if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", jsonPath, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, g.Mermaid())
			fmt.Fprintf(out, "Graph written to %s and %s\n", mermaidPath, jsonPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&folder, "folder", "output", "output folder for the graph files")
	return cmd
}
