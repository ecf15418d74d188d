// Package sandbox defines the contract for executing generated projects in an
// isolated environment.
//
// The engine never executes generated code in its own process. Callers supply
// a Client implementation backed by whatever isolation mechanism they run
// (container, microVM, remote runner); this package owns the request/result
// shapes and the project-type command heuristic only.
package sandbox

import (
	"context"
	"strings"
	"time"
)

// Request describes one isolated execution of a generated project.
type Request struct {
	// Files is the complete project content, path to source.
	Files map[string]string `json:"files"`

	// CommandHint is the suggested entry command, usually from DetectCommand.
	// Implementations may override it when they know better.
	CommandHint string `json:"command_hint"`

	// Timeout bounds wall-clock execution time.
	Timeout time.Duration `json:"timeout"`
}

// Result is the normalized outcome of one sandboxed execution.
type Result struct {
	ExitStatus int    `json:"exit_status"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	TimedOut   bool   `json:"timed_out"`
}

// Test runners exit 5 when the project has no tests collected. That is not a
// failure of the generated code, so OK treats it as success.
const exitNoTests = 5

// OK reports whether the execution counts as successful.
func (r *Result) OK() bool {
	if r.TimedOut {
		return false
	}
	return r.ExitStatus == 0 || r.ExitStatus == exitNoTests
}

// Log renders the combined output for completeness prompts and reports.
func (r *Result) Log() string {
	var b strings.Builder
	if r.Stdout != "" {
		b.WriteString(r.Stdout)
	}
	if r.Stderr != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(r.Stderr)
	}
	if r.TimedOut {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("execution timed out")
	}
	return b.String()
}

// Client executes a generated project in one fresh isolated environment per
// invocation. Implementations must not retry; retry policy belongs to the
// verification loop.
type Client interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

// =============================================================================
// COMMAND DETECTION
// =============================================================================

// DetectCommand picks an entry command from the project's marker files.
// Python projects with a requirements file get a dependency install plus
// pytest; Go and Node projects get their native test runners. Projects with
// no recognized markers fall back to running the entry file directly.
func DetectCommand(files map[string]string) string {
	if _, ok := files["requirements.txt"]; ok {
		return "pip install -r requirements.txt && python -m pytest -v"
	}
	if _, ok := files["go.mod"]; ok {
		return "go test ./..."
	}
	if _, ok := files["package.json"]; ok {
		return "npm install && npm test"
	}
	if entry := entryFile(files); entry != "" {
		return "python " + entry
	}
	return ""
}

// entryFile finds a conventional entry point among the project files.
func entryFile(files map[string]string) string {
	for _, candidate := range []string{"main.py", "app.py", "run.py"} {
		if _, ok := files[candidate]; ok {
			return candidate
		}
	}
	// Any top-level python file will do as a last resort.
	for path := range files {
		if strings.HasSuffix(path, ".py") && !strings.Contains(path, "/") {
			return path
		}
	}
	return ""
}
