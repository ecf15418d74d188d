// Package verify implements the completeness verification loop.
//
// Each iteration executes the generated project in the sandbox, asks the
// collaborator to judge completeness against the accumulated context, records
// a VerificationReport, and regenerates the files implicated by the failure.
// The loop is bounded by an explicit iteration budget; exhausting it is a
// non-fatal outcome that keeps all partial results.
package verify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/atelier-agents/codeforge/engine/observability"
	"github.com/atelier-agents/codeforge/engine/sandbox"
	"github.com/atelier-agents/codeforge/engine/schema"
	"github.com/atelier-agents/codeforge/engine/stage"
	"github.com/atelier-agents/codeforge/engine/state"
)

var tracer = otel.Tracer("codeforge/verify")

// DefaultExecutionTimeout bounds one sandboxed run when none is configured.
const DefaultExecutionTimeout = 60 * time.Second

// StageCompleteness is the stage identifier for the completeness judgment.
const StageCompleteness = "completeness_verification"

// StageRegeneration is the stage identifier for repair regeneration prompts.
const StageRegeneration = "code_generation"

// Outcome is the non-fatal result of running the loop.
type Outcome string

const (
	// OutcomePassed indicates verification succeeded.
	OutcomePassed Outcome = "passed"
	// OutcomeBudgetExhausted indicates the iteration budget ran out before a
	// pass. Partial results are kept on the state.
	OutcomeBudgetExhausted Outcome = "budget_exhausted"
)

// Loop runs bounded verify-and-repair cycles over a workflow state.
type Loop struct {
	Executor *stage.Executor
	Sandbox  sandbox.Client
	Logger   stage.Logger

	// MaxIterations bounds repair cycles. Must be positive; there is no
	// run-forever default.
	MaxIterations int

	// ExecutionTimeout bounds one sandboxed run. Zero means
	// DefaultExecutionTimeout.
	ExecutionTimeout time.Duration
}

func (l *Loop) timeout() time.Duration {
	if l.ExecutionTimeout > 0 {
		return l.ExecutionTimeout
	}
	return DefaultExecutionTimeout
}

// Run drives verification to a terminal outcome. Fatal errors (stage
// validation exhaustion, collaborator or sandbox transport failure) are
// returned as errors; a pass or an exhausted budget is an Outcome.
func (l *Loop) Run(ctx context.Context, w *state.WorkflowState) (Outcome, error) {
	if l.MaxIterations <= 0 {
		return "", fmt.Errorf("verification: max iterations must be positive, got %d", l.MaxIterations)
	}

	ctx, span := tracer.Start(ctx, "verify.run", trace.WithAttributes(
		attribute.String("codeforge.run.id", w.RunID),
		attribute.Int("codeforge.verify.max_iterations", l.MaxIterations),
	))
	defer span.End()

	logger := l.Logger.Bind("run_id", w.RunID)

	for {
		report, missing, err := l.check(ctx, w, logger)
		if err != nil {
			return "", err
		}
		w.AppendReport(*report)
		observability.RecordVerificationIteration(string(report.Status))

		if report.Status == state.StatusPass {
			logger.Info("verification_passed", "iterations", w.IterationCount)
			span.SetAttributes(attribute.Int("codeforge.verify.iterations", w.IterationCount))
			return OutcomePassed, nil
		}

		w.IterationCount++
		if err := l.regenerate(ctx, w, report, missing, logger); err != nil {
			return "", err
		}

		if w.IterationCount >= l.MaxIterations {
			logger.Warn("verification_budget_exhausted", "iterations", w.IterationCount)
			span.SetAttributes(attribute.Int("codeforge.verify.iterations", w.IterationCount))
			return OutcomeBudgetExhausted, nil
		}
	}
}

// check runs one sandboxed execution plus completeness judgment and produces
// the iteration's report. Execution failure takes precedence over any
// "missing elements" finding in the report status.
func (l *Loop) check(ctx context.Context, w *state.WorkflowState, logger stage.Logger) (*state.VerificationReport, []schema.MissingElement, error) {
	execStart := time.Now()
	result, err := l.Sandbox.Execute(ctx, sandbox.Request{
		Files:       w.GeneratedFiles,
		CommandHint: sandbox.DetectCommand(w.GeneratedFiles),
		Timeout:     l.timeout(),
	})
	execMS := int(time.Since(execStart).Milliseconds())
	if err != nil {
		observability.RecordSandboxExecution("error", execMS)
		return nil, nil, fmt.Errorf("verification: sandbox unavailable: %w", err)
	}
	observability.RecordSandboxExecution(sandboxStatus(result), execMS)

	log := result.Log()
	logger.Debug("sandbox_executed", "exit_status", result.ExitStatus, "timed_out", result.TimedOut)

	promptCtx := w.Snapshot()
	promptCtx["generated_files"] = w.GeneratedFiles
	promptCtx["execution_log"] = log
	promptCtx["execution_ok"] = result.OK()

	res, err := stage.Run[schema.CompletenessReport](ctx, l.Executor, StageCompleteness, promptCtx)
	if err != nil {
		return nil, nil, err
	}

	report := &state.VerificationReport{
		Status:    state.StatusPass,
		Timestamp: time.Now().UTC(),
	}
	if log != "" {
		report.ExecutionLog = &log
	}
	for _, el := range res.Parsed.MissingElements {
		report.MissingElements = append(report.MissingElements, describeMissing(el))
	}
	switch {
	case !result.OK():
		report.Status = state.StatusExecutionError
	case !res.Parsed.Complete:
		report.Status = state.StatusIncomplete
	}
	return report, res.Parsed.MissingElements, nil
}

// regenerate produces fresh content for the implicated files and merges it.
func (l *Loop) regenerate(ctx context.Context, w *state.WorkflowState, report *state.VerificationReport, missing []schema.MissingElement, logger stage.Logger) error {
	targets := l.attributeFailure(w, report, missing)
	logger.Info("regenerating_files", "iteration", w.IterationCount, "targets", targets)

	promptCtx := w.Snapshot()
	promptCtx["generated_files"] = w.GeneratedFiles
	promptCtx["regenerate_paths"] = targets
	promptCtx["missing_elements"] = report.MissingElements
	if report.ExecutionLog != nil {
		promptCtx["execution_log"] = *report.ExecutionLog
	}

	res, err := stage.Run[schema.FileSet](ctx, l.Executor, StageRegeneration, promptCtx)
	if err != nil {
		return err
	}

	incoming := res.Parsed.AsMap()
	l.logChangeMagnitude(w, incoming, logger)

	if rejected := w.MergeGeneratedFiles(incoming); len(rejected) > 0 {
		logger.Warn("regeneration_paths_rejected", "paths", rejected)
	}
	return nil
}

// attributeFailure decides which files to regenerate. Files named by the
// completeness report come first; on execution failure, manifest paths that
// appear in the execution log are added. When nothing can be attributed the
// whole manifest is regenerated rather than guessing.
func (l *Loop) attributeFailure(w *state.WorkflowState, report *state.VerificationReport, missing []schema.MissingElement) []string {
	seen := make(map[string]bool)
	var targets []string
	add := func(path string) {
		if path != "" && !seen[path] {
			seen[path] = true
			targets = append(targets, path)
		}
	}

	for _, el := range missing {
		if el.Path != "" && w.HasManifestPath(el.Path) {
			add(el.Path)
		}
	}

	if report.Status == state.StatusExecutionError && report.ExecutionLog != nil {
		for _, path := range w.ManifestPaths() {
			if strings.Contains(*report.ExecutionLog, path) {
				add(path)
			}
		}
	}

	if len(targets) == 0 {
		return w.ManifestPaths()
	}
	return targets
}

// logChangeMagnitude logs the per-file edit distance of an incoming merge.
func (l *Loop) logChangeMagnitude(w *state.WorkflowState, incoming map[string]string, logger stage.Logger) {
	dmp := diffmatchpatch.New()
	for path, content := range incoming {
		previous := w.GeneratedFiles[path]
		if previous == content {
			logger.Debug("file_unchanged", "path", path)
			continue
		}
		diffs := dmp.DiffMain(previous, content, false)
		logger.Debug("file_regenerated", "path", path, "edit_distance", dmp.DiffLevenshtein(diffs))
	}
}

func sandboxStatus(r *sandbox.Result) string {
	switch {
	case r.TimedOut:
		return "timeout"
	case r.OK():
		return "ok"
	default:
		return "failed"
	}
}

func describeMissing(el schema.MissingElement) string {
	if el.Path == "" {
		return el.Description
	}
	return el.Path + ": " + el.Description
}
