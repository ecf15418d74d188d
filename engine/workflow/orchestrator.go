package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/atelier-agents/codeforge/engine/observability"
	"github.com/atelier-agents/codeforge/engine/sandbox"
	"github.com/atelier-agents/codeforge/engine/schema"
	"github.com/atelier-agents/codeforge/engine/stage"
	"github.com/atelier-agents/codeforge/engine/state"
	"github.com/atelier-agents/codeforge/engine/verify"
)

var tracer = otel.Tracer("codeforge/workflow")

// ReadmePath is where the documentation stage lands its output.
const ReadmePath = "README.md"

// StateStore persists terminal run state. Implementations decide layout; the
// CLI ships a directory-backed one.
type StateStore interface {
	Save(ctx context.Context, w *state.WorkflowState) error
}

// Orchestrator walks the workflow graph for a run. It is stateless across
// runs; one Orchestrator serves any number of them.
type Orchestrator struct {
	Executor *stage.Executor
	Sandbox  sandbox.Client
	Logger   stage.Logger

	// MaxIterations bounds the verification loop. Required.
	MaxIterations int

	// ExecutionTimeout bounds one sandboxed run. Zero means the verify
	// package default.
	ExecutionTimeout time.Duration

	// Store, when set, receives the terminal state of every run.
	Store StateStore
}

// RunResult is the outcome of one workflow run or interactive turn.
type RunResult struct {
	State *state.WorkflowState

	// Status is the terminal status of the run.
	Status state.TerminalStatus

	// BudgetExhausted flags a done run whose verification budget ran out
	// before a pass. Generated files are partial results.
	BudgetExhausted bool

	// FailedStage and Diagnostic are set when Status is failed.
	FailedStage string
	Diagnostic  string
}

// Summary renders a human-readable account of the run.
func (r *RunResult) Summary() string {
	if r.Status == state.TerminalFailed {
		return fmt.Sprintf("Workflow failed at stage '%s': %s", r.FailedStage, r.Diagnostic)
	}

	paths := make([]string, 0, len(r.State.GeneratedFiles))
	for path := range r.State.GeneratedFiles {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	out := fmt.Sprintf("Workflow completed. %d files created:\n", len(paths))
	for _, path := range paths {
		out += "  - " + path + "\n"
	}
	if r.BudgetExhausted {
		out += fmt.Sprintf("Verification budget exhausted after %d iterations; results are partial.\n",
			r.State.IterationCount)
	}
	return out
}

// Compile builds the workflow graph without touching the collaborator or the
// sandbox. Used to inspect the topology before spending any model budget.
func (o *Orchestrator) Compile() *Graph {
	return BuildGraph()
}

// RunWorkflow executes one unattended run from a task query to a terminal
// state.
func (o *Orchestrator) RunWorkflow(ctx context.Context, task string) (*RunResult, error) {
	w := state.New(task)
	return o.run(ctx, w, "workflow")
}

// Turn executes one interactive turn. A nil session state starts a fresh
// conversation; otherwise the turn re-enters the graph at the start marker
// with the accumulated state preserved, so follow-up queries refine the same
// project instead of starting over.
func (o *Orchestrator) Turn(ctx context.Context, w *state.WorkflowState, query string) (*RunResult, error) {
	if w == nil {
		w = state.New(query)
	} else {
		w.TaskQuery = query
		w.Stage = MarkerStart
		w.IterationCount = 0
		w.Terminal = nil
		w.FailedStage = nil
		w.Diagnostic = nil
		w.CompletedAt = nil
	}
	return o.run(ctx, w, "interactive")
}

func (o *Orchestrator) run(ctx context.Context, w *state.WorkflowState, mode string) (*RunResult, error) {
	if o.MaxIterations <= 0 {
		return nil, fmt.Errorf("workflow: max iterations must be positive, got %d", o.MaxIterations)
	}

	ctx, span := tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("codeforge.run.id", w.RunID),
		attribute.String("codeforge.mode", mode),
	))
	defer span.End()

	logger := o.Logger.Bind("run_id", w.RunID, "mode", mode)
	logger.Info("workflow_started", "task", w.TaskQuery)
	startTime := time.Now()

	result, err := o.walk(ctx, w, logger)
	durationMS := int(time.Since(startTime).Milliseconds())
	if err != nil {
		// walk only errors on misconfiguration; stage failures land in result.
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	observability.RecordWorkflowRun(mode, string(result.Status), durationMS)
	if result.Status == state.TerminalFailed {
		span.SetStatus(codes.Error, result.Diagnostic)
		logger.Error("workflow_failed", "failed_stage", result.FailedStage, "diagnostic", result.Diagnostic)
	} else {
		span.SetStatus(codes.Ok, "done")
		logger.Info("workflow_completed", "files", len(w.GeneratedFiles), "duration_ms", durationMS)
	}

	if o.Store != nil {
		if err := o.Store.Save(ctx, w); err != nil {
			logger.Error("state_persist_failed", "error", err.Error())
		}
	}
	return result, nil
}

// walk advances the state through the stages in graph order. Any fatal stage
// error transitions to the failed node and terminates the run.
func (o *Orchestrator) walk(ctx context.Context, w *state.WorkflowState, logger stage.Logger) (*RunResult, error) {
	fail := func(stageID string, err error) *RunResult {
		w.Fail(stageID, err.Error())
		return &RunResult{
			State:       w,
			Status:      state.TerminalFailed,
			FailedStage: stageID,
			Diagnostic:  err.Error(),
		}
	}

	// Requirements analysis
	w.Stage = StageRequirements
	reqs, err := stage.Run[schema.Requirements](ctx, o.Executor, StageRequirements, w.Snapshot())
	if err != nil {
		return fail(StageRequirements, err), nil
	}
	w.Requirements = reqs.Parsed.Requirements
	w.RequirementDeps = reqs.Parsed.Dependencies

	// Design
	w.Stage = StageDesign
	design, err := stage.Run[schema.Design](ctx, o.Executor, StageDesign, w.Snapshot())
	if err != nil {
		return fail(StageDesign, err), nil
	}
	d := design.Parsed
	w.Design = &d

	// Structure proposal
	w.Stage = StageStructure
	manifest, err := stage.Run[schema.FileManifest](ctx, o.Executor, StageStructure, w.Snapshot())
	if err != nil {
		return fail(StageStructure, err), nil
	}
	prior := w.FileManifest
	w.FileManifest = manifest.Parsed.Files
	// Files generated on earlier turns stay regenerable even when the new
	// proposal omits them: generated keys must remain a subset of the
	// manifest paths.
	for path := range w.GeneratedFiles {
		if !w.HasManifestPath(path) {
			w.AppendManifestFile(carriedEntry(prior, path))
		}
	}

	// Code generation
	w.Stage = StageCodeGeneration
	files, err := stage.Run[schema.FileSet](ctx, o.Executor, StageCodeGeneration, w.Snapshot())
	if err != nil {
		return fail(StageCodeGeneration, err), nil
	}
	if rejected := w.MergeGeneratedFiles(files.Parsed.AsMap()); len(rejected) > 0 {
		logger.Warn("generated_paths_rejected", "paths", rejected)
	}
	if len(w.GeneratedFiles) == 0 {
		return fail(StageCodeGeneration, fmt.Errorf("no generated file matched the proposed structure")), nil
	}

	// Completeness verification loop
	w.Stage = StageVerification
	loop := &verify.Loop{
		Executor:         o.Executor,
		Sandbox:          o.Sandbox,
		Logger:           o.Logger,
		MaxIterations:    o.MaxIterations,
		ExecutionTimeout: o.ExecutionTimeout,
	}
	outcome, err := loop.Run(ctx, w)
	if err != nil {
		return fail(StageVerification, err), nil
	}
	if outcome == verify.OutcomeBudgetExhausted {
		// Partial success: terminate without documentation, keep everything.
		diagnostic := fmt.Sprintf("verification budget exhausted after %d iterations", w.IterationCount)
		w.Diagnostic = &diagnostic
		w.Stage = MarkerDone
		w.Complete(state.TerminalDone)
		return &RunResult{State: w, Status: state.TerminalDone, BudgetExhausted: true}, nil
	}

	// Documentation
	w.Stage = StageDocumentation
	doc, err := stage.Run[schema.Documentation](ctx, o.Executor, StageDocumentation, w.Snapshot())
	if err != nil {
		return fail(StageDocumentation, err), nil
	}
	w.AppendManifestFile(schema.PlannedFile{
		Path:    ReadmePath,
		Purpose: "project documentation",
		Type:    schema.FileTypeDoc,
	})
	w.MergeGeneratedFiles(map[string]string{ReadmePath: doc.Parsed.Render()})

	w.Stage = MarkerDone
	w.Complete(state.TerminalDone)
	return &RunResult{State: w, Status: state.TerminalDone}, nil
}

// carriedEntry keeps a previously generated file in the manifest when a later
// structure proposal no longer names it. The prior turn's entry is reused
// when available.
func carriedEntry(prior []schema.PlannedFile, path string) schema.PlannedFile {
	for _, f := range prior {
		if f.Path == path {
			return f
		}
	}
	return schema.PlannedFile{Path: path, Purpose: "carried over from a previous turn", Type: schema.FileTypeSource}
}
