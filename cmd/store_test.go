package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-agents/codeforge/engine/schema"
	"github.com/atelier-agents/codeforge/engine/state"
)

func TestDirStoreSaveAndLoad(t *testing.T) {
	root := t.TempDir()
	store := &dirStore{Root: root}

	w := state.New("build a calculator")
	w.FileManifest = []schema.PlannedFile{
		{Path: "main.py", Purpose: "entry", Type: schema.FileTypeSource},
		{Path: "lib/calc.py", Purpose: "operations", Type: schema.FileTypeSource},
	}
	w.MergeGeneratedFiles(map[string]string{
		"main.py":     "import lib.calc",
		"lib/calc.py": "def add(a, b): return a + b",
	})
	w.AppendReport(state.VerificationReport{Status: state.StatusPass})
	w.Complete(state.TerminalDone)

	require.NoError(t, store.Save(context.Background(), w))

	// Generated files land at their manifest paths.
	content, err := os.ReadFile(filepath.Join(root, "main.py"))
	require.NoError(t, err)
	assert.Equal(t, "import lib.calc", string(content))
	_, err = os.Stat(filepath.Join(root, "lib", "calc.py"))
	require.NoError(t, err)

	// Metadata is kept out of the project tree.
	_, err = os.Stat(filepath.Join(root, ".codeforge", "verification_history.json"))
	require.NoError(t, err)

	restored, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, w.RunID, restored.RunID)
	assert.Equal(t, w.GeneratedFiles, restored.GeneratedFiles)
	require.Len(t, restored.VerificationHistory, 1)
	assert.Equal(t, state.StatusPass, restored.VerificationHistory[0].Status)
}

func TestDirStoreLoadMissing(t *testing.T) {
	store := &dirStore{Root: t.TempDir()}

	restored, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, restored)
}

func TestLoadSessionResumesSavedProject(t *testing.T) {
	root := t.TempDir()
	store := &dirStore{Root: root}

	w := state.New("build a calculator")
	w.FileManifest = []schema.PlannedFile{
		{Path: "main.py", Purpose: "entry", Type: schema.FileTypeSource},
	}
	w.MergeGeneratedFiles(map[string]string{"main.py": "print('hi')"})
	w.Complete(state.TerminalDone)
	require.NoError(t, store.Save(context.Background(), w))

	// A new interactive session over the same folder picks up the saved
	// state, so the first query refines the project instead of starting over.
	session, err := loadSession(root)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, w.SessionID, session.SessionID)
	assert.Equal(t, w.GeneratedFiles, session.GeneratedFiles)

	// An empty folder starts fresh.
	session, err = loadSession(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestCompileCommandWritesGraph(t *testing.T) {
	root := t.TempDir()

	cmd := newCompileCmd()
	cmd.SetArgs([]string{"--folder", root})
	cmd.SetOut(io.Discard)
	require.NoError(t, cmd.Execute())

	mermaid, err := os.ReadFile(filepath.Join(root, "workflow_graph.mmd"))
	require.NoError(t, err)
	assert.Contains(t, string(mermaid), "flowchart TD")

	_, err = os.Stat(filepath.Join(root, "workflow_graph.json"))
	require.NoError(t, err)
}
