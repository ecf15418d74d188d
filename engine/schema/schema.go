// Package schema defines the structured output contract between workflow stages.
//
// Every stage of the construction workflow requires the model to return a JSON
// object conforming to one of the payload types below. Decode is the sole entry
// point: it extracts a JSON object from free-form model text, unmarshals it,
// and validates required fields and enumerated constraints. A failed decode
// produces a ValidationError precise enough to drive a targeted repair prompt.
//
// Decoding is a pure function of its input; this package holds no state.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// VALIDATION ERRORS
// =============================================================================

// ErrorKind classifies how a field failed validation.
type ErrorKind string

const (
	// ErrorKindMalformed indicates no JSON object could be extracted at all.
	ErrorKindMalformed ErrorKind = "malformed"
	// ErrorKindMissing indicates a required field was absent or empty.
	ErrorKindMissing ErrorKind = "missing"
	// ErrorKindWrongType indicates a field had the wrong JSON type.
	ErrorKindWrongType ErrorKind = "wrong_type"
	// ErrorKindConstraint indicates a field violated an enumerated constraint.
	ErrorKindConstraint ErrorKind = "constraint"
)

// ValidationError describes exactly which field of a stage payload failed and
// why, so a repair prompt can target that defect.
type ValidationError struct {
	Stage  string    `json:"stage,omitempty"`
	Field  string    `json:"field"`
	Kind   ErrorKind `json:"kind"`
	Reason string    `json:"reason"`
}

func (e *ValidationError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("stage '%s': field '%s' %s: %s", e.Stage, e.Field, e.Kind, e.Reason)
	}
	return fmt.Sprintf("field '%s' %s: %s", e.Field, e.Kind, e.Reason)
}

func missing(field string) *ValidationError {
	return &ValidationError{Field: field, Kind: ErrorKindMissing, Reason: "required field is absent or empty"}
}

func constraint(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Kind: ErrorKindConstraint, Reason: reason}
}

// Payload is implemented by every stage output type.
type Payload interface {
	// Validate checks required fields and constraints. Nil means conformant.
	Validate() *ValidationError
	// SchemaHint returns a compact description of the expected JSON shape,
	// passed to the model collaborator alongside the prompt.
	SchemaHint() string
}

// =============================================================================
// STAGE PAYLOADS
// =============================================================================

// Requirements is the output of the requirements analysis stage.
type Requirements struct {
	Requirements []string `json:"requirements"`
	Dependencies []string `json:"dependencies"`
}

func (r Requirements) Validate() *ValidationError {
	if len(r.Requirements) == 0 {
		return missing("requirements")
	}
	for i, req := range r.Requirements {
		if strings.TrimSpace(req) == "" {
			return constraint("requirements", fmt.Sprintf("entry %d is blank", i))
		}
	}
	return nil
}

func (r Requirements) SchemaHint() string {
	return `{"requirements": ["<requirement statement>", ...], "dependencies": ["<dependency between requirements>", ...]}`
}

// Design is the output of the design stage.
type Design struct {
	Architecture string   `json:"architecture"`
	Components   []string `json:"components"`
	DataModels   []string `json:"data_models"`
	APIEndpoints []string `json:"api_endpoints"`
	Dependencies []string `json:"dependencies"`
}

func (d Design) Validate() *ValidationError {
	if strings.TrimSpace(d.Architecture) == "" {
		return missing("architecture")
	}
	if len(d.Components) == 0 {
		return missing("components")
	}
	return nil
}

func (d Design) SchemaHint() string {
	return `{"architecture": "<overview>", "components": [...], "data_models": [...], "api_endpoints": [...], "dependencies": [...]}`
}

// FileType is the closed set of recognized planned-file categories.
type FileType string

const (
	FileTypeSource FileType = "source"
	FileTypeTest   FileType = "test"
	FileTypeConfig FileType = "config"
	FileTypeDoc    FileType = "doc"
	FileTypeAsset  FileType = "asset"
)

// ValidFileType reports whether t is one of the recognized categories.
func ValidFileType(t FileType) bool {
	switch t {
	case FileTypeSource, FileTypeTest, FileTypeConfig, FileTypeDoc, FileTypeAsset:
		return true
	}
	return false
}

// PlannedFile is one entry of the project structure proposal.
type PlannedFile struct {
	Path    string   `json:"path"`
	Purpose string   `json:"purpose"`
	Type    FileType `json:"type"`
}

// FileManifest is the output of the structure proposal stage: the ordered list
// of files the generation stage will produce.
type FileManifest struct {
	Description string        `json:"description"`
	Files       []PlannedFile `json:"files"`
}

func (m FileManifest) Validate() *ValidationError {
	if len(m.Files) == 0 {
		return missing("files")
	}
	seen := make(map[string]bool, len(m.Files))
	for i, f := range m.Files {
		if f.Path == "" {
			return missing(fmt.Sprintf("files[%d].path", i))
		}
		if err := validatePath(f.Path); err != nil {
			return constraint(fmt.Sprintf("files[%d].path", i), err.Error())
		}
		if seen[f.Path] {
			return constraint(fmt.Sprintf("files[%d].path", i), fmt.Sprintf("duplicate path '%s'", f.Path))
		}
		seen[f.Path] = true
		if !ValidFileType(f.Type) {
			return constraint(fmt.Sprintf("files[%d].type", i),
				fmt.Sprintf("'%s' is not one of: source, test, config, doc, asset", f.Type))
		}
	}
	return nil
}

func (m FileManifest) SchemaHint() string {
	return `{"description": "<summary>", "files": [{"path": "dir/file.ext", "purpose": "<why>", "type": "source|test|config|doc|asset"}, ...]}`
}

// Paths returns the manifest paths in order.
func (m FileManifest) Paths() []string {
	paths := make([]string, len(m.Files))
	for i, f := range m.Files {
		paths[i] = f.Path
	}
	return paths
}

// validatePath rejects absolute and traversing paths. Generated projects are
// always rooted at the caller's output folder.
func validatePath(path string) error {
	if strings.HasPrefix(path, "/") {
		return fmt.Errorf("path must be relative")
	}
	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return fmt.Errorf("path must not traverse upward")
		}
	}
	return nil
}

// GeneratedFile is one file of generated source content.
type GeneratedFile struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Content  string `json:"content"`
}

// FileSet is the output of the code generation stage and of every targeted
// regeneration: a set of complete file contents keyed by path.
type FileSet struct {
	Files []GeneratedFile `json:"files"`
}

func (s FileSet) Validate() *ValidationError {
	if len(s.Files) == 0 {
		return missing("files")
	}
	for i, f := range s.Files {
		if f.Path == "" {
			return missing(fmt.Sprintf("files[%d].path", i))
		}
		if f.Content == "" {
			return missing(fmt.Sprintf("files[%d].content", i))
		}
	}
	return nil
}

func (s FileSet) SchemaHint() string {
	return `{"files": [{"path": "dir/file.ext", "language": "<language>", "content": "<complete file content>"}, ...]}`
}

// AsMap returns the file set keyed by path. Later entries win on duplicates.
func (s FileSet) AsMap() map[string]string {
	files := make(map[string]string, len(s.Files))
	for _, f := range s.Files {
		files[f.Path] = f.Content
	}
	return files
}

// MissingElement describes one gap found by the completeness check.
type MissingElement struct {
	Path        string `json:"path"`
	Description string `json:"description"`
}

// CompletenessReport is the output of the completeness check stage.
type CompletenessReport struct {
	Complete        bool             `json:"complete"`
	MissingElements []MissingElement `json:"missing_elements"`
}

func (r CompletenessReport) Validate() *ValidationError {
	if !r.Complete && len(r.MissingElements) == 0 {
		return constraint("missing_elements", "must be non-empty when complete is false")
	}
	for i, el := range r.MissingElements {
		if strings.TrimSpace(el.Description) == "" {
			return missing(fmt.Sprintf("missing_elements[%d].description", i))
		}
	}
	return nil
}

func (r CompletenessReport) SchemaHint() string {
	return `{"complete": true|false, "missing_elements": [{"path": "dir/file.ext", "description": "<gap>"}, ...]}`
}

// Documentation is the output of the documentation stage.
type Documentation struct {
	Overview         string            `json:"overview"`
	Installation     string            `json:"installation"`
	Usage            string            `json:"usage"`
	FileDescriptions map[string]string `json:"file_descriptions"`
}

func (d Documentation) Validate() *ValidationError {
	if strings.TrimSpace(d.Overview) == "" {
		return missing("overview")
	}
	return nil
}

func (d Documentation) SchemaHint() string {
	return `{"overview": "<project summary>", "installation": "<steps>", "usage": "<examples>", "file_descriptions": {"dir/file.ext": "<role>"}}`
}

// Render produces README markdown from the documentation payload.
func (d Documentation) Render() string {
	var b strings.Builder
	b.WriteString("# " + strings.TrimSpace(strings.SplitN(d.Overview, "\n", 2)[0]) + "\n\n")
	b.WriteString(d.Overview + "\n")
	if d.Installation != "" {
		b.WriteString("\n## Installation\n" + d.Installation + "\n")
	}
	if d.Usage != "" {
		b.WriteString("\n## Usage\n" + d.Usage + "\n")
	}
	if len(d.FileDescriptions) > 0 {
		b.WriteString("\n## File Structure\n")
		for _, f := range sortedKeys(d.FileDescriptions) {
			b.WriteString(fmt.Sprintf("- `%s`: %s\n", f, d.FileDescriptions[f]))
		}
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// DECODING
// =============================================================================

// Decode extracts a JSON object from raw model output, unmarshals it into T,
// and validates it. The returned ValidationError carries the stage name.
func Decode[T Payload](stage string, raw string) (T, *ValidationError) {
	var parsed T

	jsonStr, ok := extractJSON(raw)
	if !ok {
		return parsed, &ValidationError{
			Stage:  stage,
			Field:  "(document)",
			Kind:   ErrorKindMalformed,
			Reason: "no JSON object found in response",
		}
	}

	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		verr := &ValidationError{Stage: stage, Field: "(document)", Kind: ErrorKindMalformed, Reason: err.Error()}
		if typeErr, isType := err.(*json.UnmarshalTypeError); isType {
			verr.Field = typeErr.Field
			verr.Kind = ErrorKindWrongType
			verr.Reason = fmt.Sprintf("expected %s, got JSON %s", typeErr.Type, typeErr.Value)
		}
		return parsed, verr
	}

	if verr := parsed.Validate(); verr != nil {
		verr.Stage = stage
		return parsed, verr
	}
	return parsed, nil
}

// extractJSON finds a JSON object in free-form model text. Tries a direct
// parse first, then scans for the first balanced brace pair that parses.
func extractJSON(text string) (string, bool) {
	if json.Valid([]byte(text)) && strings.HasPrefix(strings.TrimSpace(text), "{") {
		return text, true
	}

	start := -1
	braceCount := 0
	inString := false
	escaped := false
	for i, c := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if start != -1 {
				inString = true
			}
		case '{':
			if start == -1 {
				start = i
			}
			braceCount++
		case '}':
			if start == -1 {
				continue
			}
			braceCount--
			if braceCount == 0 {
				candidate := text[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate, true
				}
				start = -1
			}
		}
	}
	return "", false
}
