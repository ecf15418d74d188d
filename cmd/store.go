package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/atelier-agents/codeforge/engine/state"
	"github.com/atelier-agents/codeforge/engine/workflow"
)

// dirStore persists terminal run state into a directory: every generated file
// at its manifest path, plus the verification history and the full state dict
// for later inspection or resumption.
type dirStore struct {
	Root string
}

// Save implements workflow.StateStore.
func (s *dirStore) Save(_ context.Context, w *state.WorkflowState) error {
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	for path, content := range w.GeneratedFiles {
		full := filepath.Join(s.Root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	history, err := json.MarshalIndent(w.VerificationHistory, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize verification history: %w", err)
	}
	if err := s.writeMeta("verification_history.json", history); err != nil {
		return err
	}

	dict, err := json.MarshalIndent(w.ToStateDict(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}
	return s.writeMeta("workflow_state.json", dict)
}

// Metadata lives under a dot-directory so it never collides with generated
// project files.
func (s *dirStore) writeMeta(name string, data []byte) error {
	dir := filepath.Join(s.Root, ".codeforge")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create metadata folder: %w", err)
	}
	full := filepath.Join(dir, name)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", full, err)
	}
	return nil
}

// Load restores a previously saved state, or returns nil when none exists.
func (s *dirStore) Load() (*state.WorkflowState, error) {
	data, err := os.ReadFile(filepath.Join(s.Root, ".codeforge", "workflow_state.json"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read saved state: %w", err)
	}

	var dict map[string]any
	if err := json.Unmarshal(data, &dict); err != nil {
		return nil, fmt.Errorf("failed to parse saved state: %w", err)
	}
	return state.FromStateDict(dict), nil
}

var _ workflow.StateStore = (*dirStore)(nil)
