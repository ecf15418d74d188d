// Package stage executes single workflow stages against the model collaborator.
//
// The Executor owns the request/decode/repair cycle for one stage invocation:
// build the prompt, call the collaborator, decode the structured payload, and
// on validation failure re-prompt with the precise defect up to the configured
// repair budget. It holds no per-run state; the same Executor serves every
// stage of every concurrent run.
package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/atelier-agents/codeforge/engine/observability"
	"github.com/atelier-agents/codeforge/engine/schema"
)

var tracer = otel.Tracer("codeforge/stage")

// DefaultMaxRepairAttempts is the repair budget when none is configured.
const DefaultMaxRepairAttempts = 2

// =============================================================================
// CONTRACTS
// =============================================================================

// LLMClient is the interface to the model collaborator.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, schemaHint string) (string, error)
}

// Logger is the interface for logging.
type Logger interface {
	Info(msg string, fields ...any)
	Debug(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	Bind(fields ...any) Logger
}

// PromptRegistry resolves a stage identifier plus accumulated context into a
// prompt for the collaborator.
type PromptRegistry interface {
	Get(stageID string, context map[string]any) (string, error)
}

// =============================================================================
// ERRORS
// =============================================================================

// ExhaustedError is returned when a stage's output still fails validation
// after the repair budget is spent. It is fatal to the workflow run.
type ExhaustedError struct {
	Stage    string
	Attempts int
	LastRaw  string
	LastErr  *schema.ValidationError
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("stage '%s': output failed validation after %d attempts: %v",
		e.Stage, e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// =============================================================================
// EXECUTOR
// =============================================================================

// Executor runs stages against the collaborator with a bounded repair loop.
type Executor struct {
	LLM     LLMClient
	Prompts PromptRegistry
	Logger  Logger

	// MaxRepairAttempts is the number of re-prompts allowed after the initial
	// attempt fails validation. Zero means DefaultMaxRepairAttempts.
	MaxRepairAttempts int
}

// NewExecutor creates an Executor with the default repair budget.
func NewExecutor(llm LLMClient, prompts PromptRegistry, logger Logger) *Executor {
	return &Executor{
		LLM:               llm,
		Prompts:           prompts,
		Logger:            logger,
		MaxRepairAttempts: DefaultMaxRepairAttempts,
	}
}

func (e *Executor) repairBudget() int {
	if e.MaxRepairAttempts > 0 {
		return e.MaxRepairAttempts
	}
	return DefaultMaxRepairAttempts
}

// Result carries one validated stage output.
type Result[T schema.Payload] struct {
	// RawText is the collaborator response the payload was decoded from.
	RawText string

	// Parsed is the validated payload.
	Parsed T

	// ValidationAttempts counts decode attempts, including the successful
	// one. A first-try success reports 1.
	ValidationAttempts int
}

// Run executes one stage: prompt, generate, decode, repair. Go does not allow
// methods to introduce type parameters, so this is a package function over the
// executor rather than a method on it.
//
// Error taxonomy: a transport failure from the collaborator is returned as-is
// (wrapped); a payload that never validates within the budget is returned as
// *ExhaustedError. Both are fatal to the caller's run.
func Run[T schema.Payload](ctx context.Context, e *Executor, stageID string, promptCtx map[string]any) (*Result[T], error) {
	ctx, span := tracer.Start(ctx, "stage.run", trace.WithAttributes(
		attribute.String("codeforge.stage", stageID),
	))
	defer span.End()

	logger := e.Logger.Bind("stage", stageID)
	startTime := time.Now()

	prompt, err := e.Prompts.Get(stageID, promptCtx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("stage '%s': prompt resolution: %w", stageID, err)
	}

	var zero T
	hint := zero.SchemaHint()
	budget := e.repairBudget()

	var lastRaw string
	var lastVerr *schema.ValidationError

	logger.Info("stage_started")

	for attempt := 1; attempt <= 1+budget; attempt++ {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("stage '%s': %w", stageID, err)
		}

		attemptPrompt := prompt
		if lastVerr != nil {
			attemptPrompt = repairPrompt(prompt, lastRaw, lastVerr)
			observability.RecordRepairAttempt(stageID)
			logger.Warn("stage_repair_attempt", "attempt", attempt, "defect", lastVerr.Error())
		}

		raw, genErr := e.LLM.Generate(ctx, attemptPrompt, hint)
		if genErr != nil {
			durationMS := int(time.Since(startTime).Milliseconds())
			observability.RecordStageExecution(stageID, "error", durationMS)
			span.RecordError(genErr)
			span.SetStatus(codes.Error, genErr.Error())
			logger.Error("stage_collaborator_error", "error", genErr.Error())
			return nil, fmt.Errorf("stage '%s': collaborator unavailable: %w", stageID, genErr)
		}

		parsed, verr := schema.Decode[T](stageID, raw)
		if verr == nil {
			durationMS := int(time.Since(startTime).Milliseconds())
			span.SetAttributes(attribute.Int("codeforge.stage.attempts", attempt))
			span.SetStatus(codes.Ok, "success")
			observability.RecordStageExecution(stageID, "success", durationMS)
			logger.Info("stage_completed", "attempts", attempt, "duration_ms", durationMS)
			return &Result[T]{RawText: raw, Parsed: parsed, ValidationAttempts: attempt}, nil
		}

		lastRaw = raw
		lastVerr = verr
	}

	durationMS := int(time.Since(startTime).Milliseconds())
	observability.RecordStageExecution(stageID, "error", durationMS)
	exhausted := &ExhaustedError{
		Stage:    stageID,
		Attempts: 1 + budget,
		LastRaw:  lastRaw,
		LastErr:  lastVerr,
	}
	span.RecordError(exhausted)
	span.SetStatus(codes.Error, exhausted.Error())
	logger.Error("stage_validation_exhausted", "attempts", exhausted.Attempts, "defect", lastVerr.Error())
	return nil, exhausted
}

// repairPrompt augments the original prompt with the previous response and the
// exact validation defect so the collaborator can correct it.
func repairPrompt(prompt, lastRaw string, verr *schema.ValidationError) string {
	return fmt.Sprintf(
		"%s\n\nYour previous response did not conform to the required schema.\n"+
			"Previous response:\n%s\n\nDefect: %s\n\n"+
			"Return a corrected JSON object that fixes this defect. Respond with JSON only.",
		prompt, lastRaw, verr.Error())
}

// IsExhausted reports whether err is a repair-budget exhaustion.
func IsExhausted(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted)
}
