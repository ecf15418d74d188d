// Package state provides the WorkflowState - the single mutable context
// threaded through all workflow stages for one run.
//
// Design:
//   - One WorkflowState per run; never shared across concurrent runs
//   - Mutation only via merge operations: file-scoped file merges,
//     append-only verification history
//   - Serializable to/from a plain state dict for persistence
package state

import (
	"time"

	"github.com/google/uuid"

	"github.com/atelier-agents/codeforge/engine/schema"
	"github.com/atelier-agents/codeforge/engine/typeutil"
)

// VerificationStatus is the outcome of one verification loop iteration.
type VerificationStatus string

const (
	// StatusPass indicates execution succeeded and no gaps were reported.
	StatusPass VerificationStatus = "pass"
	// StatusIncomplete indicates the completeness check reported gaps.
	StatusIncomplete VerificationStatus = "incomplete"
	// StatusExecutionError indicates the sandboxed run failed or timed out.
	StatusExecutionError VerificationStatus = "execution_error"
)

// TerminalStatus represents how a workflow run ended - exactly one per run.
type TerminalStatus string

const (
	// TerminalDone indicates verification passed, or the iteration budget was
	// exhausted with partial success flagged.
	TerminalDone TerminalStatus = "done"
	// TerminalFailed indicates a fatal validation or collaborator error.
	TerminalFailed TerminalStatus = "failed"
)

// VerificationReport records one verification loop iteration. Immutable once
// created; owned by WorkflowState, appended never mutated.
type VerificationReport struct {
	Status          VerificationStatus `json:"status"`
	MissingElements []string           `json:"missing_elements,omitempty"`
	ExecutionLog    *string            `json:"execution_log,omitempty"`
	Timestamp       time.Time          `json:"timestamp"`
}

// WorkflowState is the mutable context for one workflow run.
type WorkflowState struct {
	// Identification
	RunID     string `json:"run_id"`
	SessionID string `json:"session_id"`

	// Immutable input
	TaskQuery string `json:"task_query"`

	// Stage outputs, set once per stage
	Requirements    []string             `json:"requirements"`
	RequirementDeps []string             `json:"requirement_deps"`
	Design          *schema.Design       `json:"design,omitempty"`
	FileManifest    []schema.PlannedFile `json:"file_manifest"`

	// GeneratedFiles maps file path to current source content. Updated by
	// generation and by each repair iteration; keys stay a subset of the
	// manifest paths once generation completes.
	GeneratedFiles map[string]string `json:"generated_files"`

	// VerificationHistory is append-only; its length never exceeds the
	// configured iteration bound plus the terminal report.
	VerificationHistory []VerificationReport `json:"verification_history"`

	// State machine position
	Stage          string `json:"stage"`
	IterationCount int    `json:"iteration_count"`

	// Terminal diagnostics
	Terminal    *TerminalStatus `json:"terminal,omitempty"`
	FailedStage *string         `json:"failed_stage,omitempty"`
	Diagnostic  *string         `json:"diagnostic,omitempty"`

	// Timing
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a WorkflowState for the given task.
func New(task string) *WorkflowState {
	return &WorkflowState{
		RunID:               "run_" + uuid.New().String()[:16],
		SessionID:           "sess_" + uuid.New().String()[:16],
		TaskQuery:           task,
		Requirements:        []string{},
		RequirementDeps:     []string{},
		FileManifest:        []schema.PlannedFile{},
		GeneratedFiles:      make(map[string]string),
		VerificationHistory: []VerificationReport{},
		Stage:               "start",
		CreatedAt:           time.Now().UTC(),
	}
}

// =============================================================================
// MANIFEST ACCESS
// =============================================================================

// ManifestPaths returns the planned file paths in manifest order.
func (w *WorkflowState) ManifestPaths() []string {
	paths := make([]string, len(w.FileManifest))
	for i, f := range w.FileManifest {
		paths[i] = f.Path
	}
	return paths
}

// HasManifestPath reports whether path is in the file manifest.
func (w *WorkflowState) HasManifestPath(path string) bool {
	for _, f := range w.FileManifest {
		if f.Path == path {
			return true
		}
	}
	return false
}

// AppendManifestFile adds a planned file if its path is not already present.
// Used by the documentation stage to register README output.
func (w *WorkflowState) AppendManifestFile(f schema.PlannedFile) {
	if !w.HasManifestPath(f.Path) {
		w.FileManifest = append(w.FileManifest, f)
	}
}

// =============================================================================
// MERGE OPERATIONS
// =============================================================================

// MergeGeneratedFiles merges files into GeneratedFiles. The merge is
// file-scoped: paths absent from the incoming set are left untouched, so a
// partial regeneration never resets unrelated files. The merge is atomic at
// file-set granularity - either every accepted file lands or none does.
// Paths outside the manifest are rejected and returned, preserving the
// invariant that generated keys are a subset of manifest paths.
func (w *WorkflowState) MergeGeneratedFiles(files map[string]string) (rejected []string) {
	accepted := make(map[string]string, len(files))
	for path, content := range files {
		if !w.HasManifestPath(path) {
			rejected = append(rejected, path)
			continue
		}
		accepted[path] = content
	}
	for path, content := range accepted {
		w.GeneratedFiles[path] = content
	}
	return rejected
}

// AppendReport appends a verification report to the history.
func (w *WorkflowState) AppendReport(report VerificationReport) {
	w.VerificationHistory = append(w.VerificationHistory, report)
}

// LastReport returns the most recent verification report, or nil.
func (w *WorkflowState) LastReport() *VerificationReport {
	if len(w.VerificationHistory) == 0 {
		return nil
	}
	return &w.VerificationHistory[len(w.VerificationHistory)-1]
}

// =============================================================================
// TERMINATION
// =============================================================================

// Complete marks the run terminated with the given status.
func (w *WorkflowState) Complete(status TerminalStatus) {
	w.Terminal = &status
	now := time.Now().UTC()
	w.CompletedAt = &now
}

// Fail marks the run failed, recording the offending stage and diagnostic.
func (w *WorkflowState) Fail(stage, diagnostic string) {
	w.Stage = "failed"
	w.FailedStage = &stage
	w.Diagnostic = &diagnostic
	w.Complete(TerminalFailed)
}

// =============================================================================
// SNAPSHOT & CLONE
// =============================================================================

// Snapshot returns the accumulated context for prompt construction.
func (w *WorkflowState) Snapshot() map[string]any {
	snap := map[string]any{
		"task":         w.TaskQuery,
		"requirements": append([]string(nil), w.Requirements...),
		"dependencies": append([]string(nil), w.RequirementDeps...),
	}
	if w.Design != nil {
		snap["architecture"] = w.Design.Architecture
		snap["components"] = append([]string(nil), w.Design.Components...)
		snap["data_models"] = append([]string(nil), w.Design.DataModels...)
	}
	if len(w.FileManifest) > 0 {
		snap["manifest"] = w.ManifestPaths()
	}
	return snap
}

// Clone creates a deep copy of the state.
func (w *WorkflowState) Clone() *WorkflowState {
	clone := &WorkflowState{
		RunID:          w.RunID,
		SessionID:      w.SessionID,
		TaskQuery:      w.TaskQuery,
		Stage:          w.Stage,
		IterationCount: w.IterationCount,
		CreatedAt:      w.CreatedAt,
	}
	clone.Requirements = append([]string(nil), w.Requirements...)
	clone.RequirementDeps = append([]string(nil), w.RequirementDeps...)
	clone.FileManifest = append([]schema.PlannedFile(nil), w.FileManifest...)
	clone.GeneratedFiles = make(map[string]string, len(w.GeneratedFiles))
	for k, v := range w.GeneratedFiles {
		clone.GeneratedFiles[k] = v
	}
	clone.VerificationHistory = make([]VerificationReport, len(w.VerificationHistory))
	for i, r := range w.VerificationHistory {
		clone.VerificationHistory[i] = r.clone()
	}
	if w.Design != nil {
		d := *w.Design
		d.Components = append([]string(nil), w.Design.Components...)
		d.DataModels = append([]string(nil), w.Design.DataModels...)
		d.APIEndpoints = append([]string(nil), w.Design.APIEndpoints...)
		d.Dependencies = append([]string(nil), w.Design.Dependencies...)
		clone.Design = &d
	}
	if w.Terminal != nil {
		t := *w.Terminal
		clone.Terminal = &t
	}
	if w.FailedStage != nil {
		s := *w.FailedStage
		clone.FailedStage = &s
	}
	if w.Diagnostic != nil {
		s := *w.Diagnostic
		clone.Diagnostic = &s
	}
	if w.CompletedAt != nil {
		t := *w.CompletedAt
		clone.CompletedAt = &t
	}
	return clone
}

func (r VerificationReport) clone() VerificationReport {
	out := VerificationReport{
		Status:    r.Status,
		Timestamp: r.Timestamp,
	}
	out.MissingElements = append([]string(nil), r.MissingElements...)
	if r.ExecutionLog != nil {
		log := *r.ExecutionLog
		out.ExecutionLog = &log
	}
	return out
}

// =============================================================================
// SERIALIZATION
// =============================================================================

// ToStateDict converts to a plain dict for persistence.
func (w *WorkflowState) ToStateDict() map[string]any {
	history := make([]map[string]any, len(w.VerificationHistory))
	for i, r := range w.VerificationHistory {
		entry := map[string]any{
			"status":           string(r.Status),
			"missing_elements": append([]string(nil), r.MissingElements...),
			"timestamp":        r.Timestamp.Format(time.RFC3339Nano),
		}
		if r.ExecutionLog != nil {
			entry["execution_log"] = *r.ExecutionLog
		}
		history[i] = entry
	}

	dict := map[string]any{
		"run_id":               w.RunID,
		"session_id":           w.SessionID,
		"task_query":           w.TaskQuery,
		"requirements":         append([]string(nil), w.Requirements...),
		"requirement_deps":     append([]string(nil), w.RequirementDeps...),
		"generated_files":      w.copyFiles(),
		"verification_history": history,
		"stage":                w.Stage,
		"iteration_count":      w.IterationCount,
		"created_at":           w.CreatedAt.Format(time.RFC3339Nano),
	}

	manifest := make([]map[string]any, len(w.FileManifest))
	for i, f := range w.FileManifest {
		manifest[i] = map[string]any{"path": f.Path, "purpose": f.Purpose, "type": string(f.Type)}
	}
	dict["file_manifest"] = manifest

	if w.Design != nil {
		dict["design"] = map[string]any{
			"architecture":  w.Design.Architecture,
			"components":    append([]string(nil), w.Design.Components...),
			"data_models":   append([]string(nil), w.Design.DataModels...),
			"api_endpoints": append([]string(nil), w.Design.APIEndpoints...),
			"dependencies":  append([]string(nil), w.Design.Dependencies...),
		}
	}
	if w.Terminal != nil {
		dict["terminal"] = string(*w.Terminal)
	}
	if w.FailedStage != nil {
		dict["failed_stage"] = *w.FailedStage
	}
	if w.Diagnostic != nil {
		dict["diagnostic"] = *w.Diagnostic
	}
	if w.CompletedAt != nil {
		dict["completed_at"] = w.CompletedAt.Format(time.RFC3339Nano)
	}
	return dict
}

func (w *WorkflowState) copyFiles() map[string]string {
	files := make(map[string]string, len(w.GeneratedFiles))
	for k, v := range w.GeneratedFiles {
		files[k] = v
	}
	return files
}

// FromStateDict restores a WorkflowState from a state dict.
func FromStateDict(dict map[string]any) *WorkflowState {
	w := New("")
	w.TaskQuery = typeutil.SafeStringDefault(dict["task_query"], "")
	w.RunID = typeutil.SafeStringDefault(dict["run_id"], w.RunID)
	w.SessionID = typeutil.SafeStringDefault(dict["session_id"], w.SessionID)
	w.Stage = typeutil.SafeStringDefault(dict["stage"], "start")
	w.IterationCount = typeutil.SafeIntDefault(dict["iteration_count"], 0)

	if reqs, ok := typeutil.SafeStringSlice(dict["requirements"]); ok {
		w.Requirements = reqs
	}
	if deps, ok := typeutil.SafeStringSlice(dict["requirement_deps"]); ok {
		w.RequirementDeps = deps
	}
	if files, ok := typeutil.SafeStringMap(dict["generated_files"]); ok {
		w.GeneratedFiles = files
	}

	switch manifest := dict["file_manifest"].(type) {
	case []map[string]any:
		for _, entry := range manifest {
			w.FileManifest = append(w.FileManifest, plannedFileFromDict(entry))
		}
	case []any:
		for _, entryAny := range manifest {
			if entry, ok := entryAny.(map[string]any); ok {
				w.FileManifest = append(w.FileManifest, plannedFileFromDict(entry))
			}
		}
	}

	if designDict, ok := dict["design"].(map[string]any); ok {
		design := &schema.Design{
			Architecture: typeutil.SafeStringDefault(designDict["architecture"], ""),
		}
		design.Components, _ = typeutil.SafeStringSlice(designDict["components"])
		design.DataModels, _ = typeutil.SafeStringSlice(designDict["data_models"])
		design.APIEndpoints, _ = typeutil.SafeStringSlice(designDict["api_endpoints"])
		design.Dependencies, _ = typeutil.SafeStringSlice(designDict["dependencies"])
		w.Design = design
	}

	switch history := dict["verification_history"].(type) {
	case []map[string]any:
		for _, entry := range history {
			w.VerificationHistory = append(w.VerificationHistory, reportFromDict(entry))
		}
	case []any:
		for _, entryAny := range history {
			if entry, ok := entryAny.(map[string]any); ok {
				w.VerificationHistory = append(w.VerificationHistory, reportFromDict(entry))
			}
		}
	}

	if terminal, ok := typeutil.SafeString(dict["terminal"]); ok {
		status := TerminalStatus(terminal)
		w.Terminal = &status
	}
	if failedStage, ok := typeutil.SafeString(dict["failed_stage"]); ok {
		w.FailedStage = &failedStage
	}
	if diagnostic, ok := typeutil.SafeString(dict["diagnostic"]); ok {
		w.Diagnostic = &diagnostic
	}
	if createdAt, ok := typeutil.SafeString(dict["created_at"]); ok {
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			w.CreatedAt = t
		}
	}
	if completedAt, ok := typeutil.SafeString(dict["completed_at"]); ok {
		if t, err := time.Parse(time.RFC3339Nano, completedAt); err == nil {
			w.CompletedAt = &t
		}
	}
	return w
}

func plannedFileFromDict(entry map[string]any) schema.PlannedFile {
	return schema.PlannedFile{
		Path:    typeutil.SafeStringDefault(entry["path"], ""),
		Purpose: typeutil.SafeStringDefault(entry["purpose"], ""),
		Type:    schema.FileType(typeutil.SafeStringDefault(entry["type"], string(schema.FileTypeSource))),
	}
}

func reportFromDict(entry map[string]any) VerificationReport {
	report := VerificationReport{
		Status: VerificationStatus(typeutil.SafeStringDefault(entry["status"], "")),
	}
	report.MissingElements, _ = typeutil.SafeStringSlice(entry["missing_elements"])
	if log, ok := typeutil.SafeString(entry["execution_log"]); ok {
		report.ExecutionLog = &log
	}
	if ts, ok := typeutil.SafeString(entry["timestamp"]); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			report.Timestamp = t
		}
	}
	return report
}
