// Package testutil provides shared test fakes for the engine packages.
//
// All fakes here are designed for testing engine components in isolation
// without a live model collaborator or sandbox backend.
package testutil

import (
	"context"
	"sync"

	"github.com/atelier-agents/codeforge/engine/sandbox"
	"github.com/atelier-agents/codeforge/engine/stage"
)

// =============================================================================
// SCRIPTED LLM
// =============================================================================

// LLMCall records a single collaborator call for assertion.
type LLMCall struct {
	Prompt     string
	SchemaHint string
}

// ScriptedLLM implements stage.LLMClient. It returns queued responses in
// order; when the queue is empty it returns DefaultResponse.
type ScriptedLLM struct {
	// Responses are consumed front to back.
	Responses []string

	// DefaultResponse is returned once Responses is exhausted.
	DefaultResponse string

	// Err causes Generate to return this error on every call.
	Err error

	// CallCount tracks the number of Generate calls.
	CallCount int

	// Calls records all calls for assertion.
	Calls []LLMCall

	mu sync.Mutex
}

// Generate implements stage.LLMClient.
func (s *ScriptedLLM) Generate(_ context.Context, prompt string, schemaHint string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	s.Calls = append(s.Calls, LLMCall{Prompt: prompt, SchemaHint: schemaHint})

	if s.Err != nil {
		return "", s.Err
	}
	if len(s.Responses) > 0 {
		next := s.Responses[0]
		s.Responses = s.Responses[1:]
		return next, nil
	}
	return s.DefaultResponse, nil
}

// =============================================================================
// SCRIPTED SANDBOX
// =============================================================================

// SandboxCall records one Execute invocation for assertion.
type SandboxCall struct {
	Request sandbox.Request
}

// ScriptedSandbox implements sandbox.Client, returning queued results.
type ScriptedSandbox struct {
	// Results are consumed front to back.
	Results []*sandbox.Result

	// DefaultResult is returned once Results is exhausted. Nil means a
	// passing execution.
	DefaultResult *sandbox.Result

	// Err causes Execute to return this error on every call.
	Err error

	// CallCount tracks the number of Execute calls.
	CallCount int

	// Calls records all calls for assertion.
	Calls []SandboxCall

	mu sync.Mutex
}

// Execute implements sandbox.Client.
func (s *ScriptedSandbox) Execute(_ context.Context, req sandbox.Request) (*sandbox.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	s.Calls = append(s.Calls, SandboxCall{Request: req})

	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Results) > 0 {
		next := s.Results[0]
		s.Results = s.Results[1:]
		return next, nil
	}
	if s.DefaultResult != nil {
		return s.DefaultResult, nil
	}
	return &sandbox.Result{ExitStatus: 0, Stdout: "ok"}, nil
}

// =============================================================================
// MOCK LOGGER
// =============================================================================

// LogEntry records one logged message for assertion.
type LogEntry struct {
	Level  string
	Msg    string
	Fields []any
}

// MockLogger implements stage.Logger, recording entries instead of writing.
type MockLogger struct {
	mu      sync.Mutex
	entries []LogEntry
	bound   []any
}

// NewMockLogger creates a MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) log(level, msg string, fields []any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := append(append([]any{}, m.bound...), fields...)
	m.entries = append(m.entries, LogEntry{Level: level, Msg: msg, Fields: all})
}

func (m *MockLogger) Info(msg string, fields ...any)  { m.log("info", msg, fields) }
func (m *MockLogger) Debug(msg string, fields ...any) { m.log("debug", msg, fields) }
func (m *MockLogger) Warn(msg string, fields ...any)  { m.log("warn", msg, fields) }
func (m *MockLogger) Error(msg string, fields ...any) { m.log("error", msg, fields) }

// Bind implements stage.Logger. The bound logger shares the entry log so
// tests can assert across child loggers.
func (m *MockLogger) Bind(fields ...any) stage.Logger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &boundMockLogger{parent: m, bound: append(append([]any{}, m.bound...), fields...)}
}

// Entries returns a copy of the recorded entries.
func (m *MockLogger) Entries() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LogEntry(nil), m.entries...)
}

// HasMessage reports whether any entry carries the given message.
func (m *MockLogger) HasMessage(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.Msg == msg {
			return true
		}
	}
	return false
}

type boundMockLogger struct {
	parent *MockLogger
	bound  []any
}

func (b *boundMockLogger) log(level, msg string, fields []any) {
	b.parent.log(level, msg, append(append([]any{}, b.bound...), fields...))
}

func (b *boundMockLogger) Info(msg string, fields ...any)  { b.log("info", msg, fields) }
func (b *boundMockLogger) Debug(msg string, fields ...any) { b.log("debug", msg, fields) }
func (b *boundMockLogger) Warn(msg string, fields ...any)  { b.log("warn", msg, fields) }
func (b *boundMockLogger) Error(msg string, fields ...any) { b.log("error", msg, fields) }

func (b *boundMockLogger) Bind(fields ...any) stage.Logger {
	return &boundMockLogger{parent: b.parent, bound: append(append([]any{}, b.bound...), fields...)}
}

// =============================================================================
// STATIC PROMPTS
// =============================================================================

// StaticPrompts implements stage.PromptRegistry, returning the stage ID as
// the prompt. Sufficient for tests that only assert on call flow.
type StaticPrompts struct{}

// Get implements stage.PromptRegistry.
func (StaticPrompts) Get(stageID string, _ map[string]any) (string, error) {
	return "prompt for " + stageID, nil
}
