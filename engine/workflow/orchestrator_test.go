package workflow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-agents/codeforge/engine/stage"
	"github.com/atelier-agents/codeforge/engine/state"
	"github.com/atelier-agents/codeforge/engine/testutil"
	"github.com/atelier-agents/codeforge/engine/workflow"
)

const (
	requirementsResponse = `{"requirements": ["perform arithmetic"], "dependencies": []}`
	designResponse       = `{"architecture": "single module", "components": ["calculator"], "data_models": [], "api_endpoints": [], "dependencies": []}`
	structureResponse    = `{"description": "minimal layout", "files": [
		{"path": "main.py", "purpose": "entry point", "type": "source"},
		{"path": "calculator.py", "purpose": "operations", "type": "source"}
	]}`
	generationResponse = `{"files": [
		{"path": "main.py", "language": "python", "content": "import calculator"},
		{"path": "calculator.py", "language": "python", "content": "def add(a, b): return a + b"}
	]}`
	completeResponse      = `{"complete": true, "missing_elements": []}`
	documentationResponse = `{"overview": "Calculator", "installation": "none", "usage": "python main.py", "file_descriptions": {"main.py": "entry"}}`
)

type memoryStore struct {
	saved []*state.WorkflowState
}

func (m *memoryStore) Save(_ context.Context, w *state.WorkflowState) error {
	m.saved = append(m.saved, w)
	return nil
}

func newOrchestrator(llm *testutil.ScriptedLLM, sb *testutil.ScriptedSandbox) *workflow.Orchestrator {
	return &workflow.Orchestrator{
		Executor:      stage.NewExecutor(llm, workflow.BuiltinPrompts{}, testutil.NewMockLogger()),
		Sandbox:       sb,
		Logger:        testutil.NewMockLogger(),
		MaxIterations: 3,
	}
}

// =============================================================================
// COMPILE MODE
// =============================================================================

func TestCompileMakesNoCollaboratorCalls(t *testing.T) {
	llm := &testutil.ScriptedLLM{}
	sb := &testutil.ScriptedSandbox{}
	o := newOrchestrator(llm, sb)

	g := o.Compile()

	require.NotNil(t, g)
	assert.Len(t, g.Nodes, 7)
	assert.Zero(t, llm.CallCount)
	assert.Zero(t, sb.CallCount)
}

// =============================================================================
// UNATTENDED RUNS
// =============================================================================

func TestRunWorkflowToDone(t *testing.T) {
	llm := &testutil.ScriptedLLM{Responses: []string{
		requirementsResponse,
		designResponse,
		structureResponse,
		generationResponse,
		completeResponse,
		documentationResponse,
	}}
	store := &memoryStore{}
	o := newOrchestrator(llm, &testutil.ScriptedSandbox{})
	o.Store = store

	res, err := o.RunWorkflow(context.Background(), "build a calculator")

	require.NoError(t, err)
	assert.Equal(t, state.TerminalDone, res.Status)
	assert.False(t, res.BudgetExhausted)
	assert.Equal(t, workflow.MarkerDone, res.State.Stage)

	// Stage outputs accumulated on the state.
	assert.Equal(t, []string{"perform arithmetic"}, res.State.Requirements)
	require.NotNil(t, res.State.Design)
	assert.Equal(t, "single module", res.State.Design.Architecture)
	assert.Equal(t, "import calculator", res.State.GeneratedFiles["main.py"])

	// Documentation landed as README.
	assert.Contains(t, res.State.GeneratedFiles[workflow.ReadmePath], "# Calculator")

	// One passing verification, terminal state persisted.
	require.Len(t, res.State.VerificationHistory, 1)
	assert.Equal(t, state.StatusPass, res.State.VerificationHistory[0].Status)
	require.Len(t, store.saved, 1)
	require.NotNil(t, store.saved[0].Terminal)

	assert.Contains(t, res.Summary(), "main.py")
}

func TestRunWorkflowFailsAtStage(t *testing.T) {
	// Requirements succeed; design never validates.
	llm := &testutil.ScriptedLLM{
		Responses:       []string{requirementsResponse},
		DefaultResponse: "I don't feel like producing JSON today.",
	}
	o := newOrchestrator(llm, &testutil.ScriptedSandbox{})

	res, err := o.RunWorkflow(context.Background(), "build a calculator")

	require.NoError(t, err)
	assert.Equal(t, state.TerminalFailed, res.Status)
	assert.Equal(t, workflow.StageDesign, res.FailedStage)
	assert.NotEmpty(t, res.Diagnostic)
	assert.Equal(t, workflow.StageFailed, res.State.Stage)
	require.NotNil(t, res.State.FailedStage)
	assert.Equal(t, workflow.StageDesign, *res.State.FailedStage)
	// Requirements gathered before the failure are kept for diagnosis.
	assert.Equal(t, []string{"perform arithmetic"}, res.State.Requirements)
}

func TestRunWorkflowBudgetExhaustedIsPartialSuccess(t *testing.T) {
	llm := &testutil.ScriptedLLM{Responses: []string{
		requirementsResponse,
		designResponse,
		structureResponse,
		generationResponse,
	}}
	// Every verification check finds the same gap; every regeneration tries again.
	incomplete := `{"complete": false, "missing_elements": [{"path": "calculator.py", "description": "subtract missing"}]}`
	regen := `{"files": [{"path": "calculator.py", "language": "python", "content": "def add(a, b): return a + b"}]}`
	llm.Responses = append(llm.Responses, incomplete, regen, incomplete, regen, incomplete, regen)

	o := newOrchestrator(llm, &testutil.ScriptedSandbox{})
	res, err := o.RunWorkflow(context.Background(), "build a calculator")

	require.NoError(t, err)
	assert.Equal(t, state.TerminalDone, res.Status)
	assert.True(t, res.BudgetExhausted)
	assert.Len(t, res.State.VerificationHistory, 3)
	assert.Equal(t, 3, res.State.IterationCount)
	// No documentation after exhaustion; partial files are kept.
	assert.NotContains(t, res.State.GeneratedFiles, workflow.ReadmePath)
	assert.Contains(t, res.State.GeneratedFiles, "main.py")
	assert.Contains(t, res.Summary(), "partial")
}

func TestRunWorkflowRejectsMissingIterationBound(t *testing.T) {
	o := newOrchestrator(&testutil.ScriptedLLM{}, &testutil.ScriptedSandbox{})
	o.MaxIterations = 0

	_, err := o.RunWorkflow(context.Background(), "task")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max iterations")
}

// =============================================================================
// INTERACTIVE TURNS
// =============================================================================

func TestTurnKeepsGeneratedFilesInManifest(t *testing.T) {
	llm := &testutil.ScriptedLLM{Responses: []string{
		requirementsResponse,
		designResponse,
		structureResponse,
		generationResponse,
		completeResponse,
		documentationResponse,
	}}
	o := newOrchestrator(llm, &testutil.ScriptedSandbox{})

	first, err := o.Turn(context.Background(), nil, "build a calculator")
	require.NoError(t, err)

	// The second turn's structure proposal omits main.py entirely.
	llm.Responses = []string{
		requirementsResponse,
		designResponse,
		`{"description": "narrower layout", "files": [
			{"path": "calculator.py", "purpose": "operations", "type": "source"}
		]}`,
		`{"files": [{"path": "calculator.py", "language": "python", "content": "def add(a, b): return a + b"}]}`,
		completeResponse,
		documentationResponse,
	}

	second, err := o.Turn(context.Background(), first.State, "simplify the project")
	require.NoError(t, err)
	assert.Equal(t, state.TerminalDone, second.Status)

	// Files preserved from the first turn stay addressable: every generated
	// key remains a manifest path, so regeneration can still target it.
	assert.Contains(t, second.State.GeneratedFiles, "main.py")
	for path := range second.State.GeneratedFiles {
		assert.True(t, second.State.HasManifestPath(path),
			"generated file %q is not in the file manifest", path)
	}
	// The carried entry reuses the prior turn's metadata.
	for _, f := range second.State.FileManifest {
		if f.Path == "main.py" {
			assert.Equal(t, "entry point", f.Purpose)
		}
	}
}

func TestTurnPreservesSessionState(t *testing.T) {
	llm := &testutil.ScriptedLLM{Responses: []string{
		requirementsResponse,
		designResponse,
		structureResponse,
		generationResponse,
		completeResponse,
		documentationResponse,
	}}
	o := newOrchestrator(llm, &testutil.ScriptedSandbox{})

	first, err := o.Turn(context.Background(), nil, "build a calculator")
	require.NoError(t, err)
	require.Equal(t, state.TerminalDone, first.Status)
	sessionID := first.State.SessionID

	// Second turn refines the same project.
	llm.Responses = []string{
		`{"requirements": ["perform arithmetic", "support subtraction"], "dependencies": []}`,
		designResponse,
		structureResponse,
		`{"files": [{"path": "calculator.py", "language": "python", "content": "def sub(a, b): return a - b"}]}`,
		completeResponse,
		documentationResponse,
	}

	second, err := o.Turn(context.Background(), first.State, "add subtraction")
	require.NoError(t, err)
	assert.Equal(t, state.TerminalDone, second.Status)
	assert.Equal(t, sessionID, second.State.SessionID)
	assert.Equal(t, "add subtraction", second.State.TaskQuery)
	// Files from the first turn survive the second.
	assert.Contains(t, second.State.GeneratedFiles, "main.py")
	assert.Equal(t, "def sub(a, b): return a - b", second.State.GeneratedFiles["calculator.py"])
}
