package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atelier-agents/codeforge/engine/state"
)

func newWorkflowCmd() *cobra.Command {
	var query string
	var folder string

	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Run one unattended construction workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			o, cleanup, err := buildOrchestrator(ctx, folder)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := o.RunWorkflow(ctx, query)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), res.Summary())
			if res.Status == state.TerminalFailed {
				return fmt.Errorf("workflow failed at stage '%s'", res.FailedStage)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Output written to %s\n", folder)
			return nil
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "task description (required)")
	cmd.Flags().StringVar(&folder, "folder", "output", "output folder for the generated project")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}
