// Package observability provides Prometheus metrics instrumentation for the engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// WORKFLOW METRICS
// =============================================================================

var (
	workflowRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codeforge_workflow_runs_total",
			Help: "Total number of workflow runs",
		},
		[]string{"mode", "status"}, // mode: workflow, interactive; status: done, failed
	)

	workflowDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codeforge_workflow_duration_seconds",
			Help:    "Workflow run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"mode"},
	)
)

// =============================================================================
// STAGE METRICS
// =============================================================================

var (
	stageExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codeforge_stage_executions_total",
			Help: "Total number of stage executions",
		},
		[]string{"stage", "status"}, // status: success, error
	)

	stageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codeforge_stage_duration_seconds",
			Help:    "Stage execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	repairAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codeforge_repair_attempts_total",
			Help: "Total number of schema repair re-prompts",
		},
		[]string{"stage"},
	)
)

// =============================================================================
// VERIFICATION METRICS
// =============================================================================

var (
	verificationIterationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codeforge_verification_iterations_total",
			Help: "Total number of verification loop iterations",
		},
		[]string{"status"}, // status: pass, incomplete, execution_error
	)

	sandboxExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codeforge_sandbox_executions_total",
			Help: "Total number of sandboxed project executions",
		},
		[]string{"status"}, // status: ok, failed, timeout, error
	)

	sandboxDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "codeforge_sandbox_duration_seconds",
			Help:    "Sandboxed execution duration in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120},
		},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordWorkflowRun records workflow run metrics.
// This should be called after a run reaches a terminal state.
func RecordWorkflowRun(mode string, status string, durationMS int) {
	workflowRunsTotal.WithLabelValues(mode, status).Inc()
	workflowDurationSeconds.WithLabelValues(mode).Observe(float64(durationMS) / 1000.0)
}

// RecordStageExecution records stage execution metrics.
// This should be called after stage processing completes.
func RecordStageExecution(stage string, status string, durationMS int) {
	stageExecutionsTotal.WithLabelValues(stage, status).Inc()
	stageDurationSeconds.WithLabelValues(stage).Observe(float64(durationMS) / 1000.0)
}

// RecordRepairAttempt records one schema repair re-prompt for a stage.
func RecordRepairAttempt(stage string) {
	repairAttemptsTotal.WithLabelValues(stage).Inc()
}

// RecordVerificationIteration records one verification loop iteration outcome.
func RecordVerificationIteration(status string) {
	verificationIterationsTotal.WithLabelValues(status).Inc()
}

// RecordSandboxExecution records sandboxed execution metrics.
func RecordSandboxExecution(status string, durationMS int) {
	sandboxExecutionsTotal.WithLabelValues(status).Inc()
	sandboxDurationSeconds.Observe(float64(durationMS) / 1000.0)
}
