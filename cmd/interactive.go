package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atelier-agents/codeforge/engine/state"
)

func newInteractiveCmd() *cobra.Command {
	var folder string

	cmd := &cobra.Command{
		Use:   "interactive",
		Short: "Refine one project over a conversation",
		Long: `Interactive mode keeps the accumulated project state between turns.
Each query re-enters the workflow with everything built so far preserved, so
follow-up requests refine the project instead of starting over.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			o, cleanup, err := buildOrchestrator(ctx, folder)
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Describe what to build. Type 'exit' to leave.")

			session, err := loadSession(folder)
			if err != nil {
				return err
			}
			if session != nil {
				fmt.Fprintf(out, "Resuming session %s (%d files).\n",
					session.SessionID, len(session.GeneratedFiles))
			}
			scanner := bufio.NewScanner(cmd.InOrStdin())
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					break
				}
				query := strings.TrimSpace(scanner.Text())
				if query == "" {
					continue
				}
				if query == "exit" || query == "quit" {
					break
				}

				res, err := o.Turn(ctx, session, query)
				if err != nil {
					return err
				}
				session = res.State
				fmt.Fprintln(out, res.Summary())
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&folder, "folder", "output", "output folder for the generated project")
	return cmd
}

// loadSession restores the project saved under folder, if any, so a new
// interactive session picks up where the last one stopped.
func loadSession(folder string) (*state.WorkflowState, error) {
	store := &dirStore{Root: folder}
	return store.Load()
}
