package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// DECODE TESTS
// =============================================================================

func TestDecodeDirectJSON(t *testing.T) {
	// Clean JSON with no surrounding prose decodes directly.
	raw := `{"requirements": ["parse input", "sum values"], "dependencies": []}`

	parsed, verr := Decode[Requirements]("requirements_analysis", raw)
	require.Nil(t, verr)
	assert.Equal(t, []string{"parse input", "sum values"}, parsed.Requirements)
}

func TestDecodeEmbeddedInProse(t *testing.T) {
	// Models often wrap the payload in explanation text and code fences.
	raw := "Here is the analysis:\n```json\n" +
		`{"requirements": ["store records"], "dependencies": ["storage before query"]}` +
		"\n```\nLet me know if you need changes."

	parsed, verr := Decode[Requirements]("requirements_analysis", raw)
	require.Nil(t, verr)
	assert.Equal(t, []string{"store records"}, parsed.Requirements)
	assert.Equal(t, []string{"storage before query"}, parsed.Dependencies)
}

func TestDecodeBracesInsideStrings(t *testing.T) {
	// Brace characters inside string values must not confuse extraction.
	raw := `noise {"requirements": ["render {name} template"], "dependencies": []} noise`

	parsed, verr := Decode[Requirements]("requirements_analysis", raw)
	require.Nil(t, verr)
	assert.Equal(t, "render {name} template", parsed.Requirements[0])
}

func TestDecodeNoJSON(t *testing.T) {
	_, verr := Decode[Requirements]("requirements_analysis", "I cannot produce that.")
	require.NotNil(t, verr)
	assert.Equal(t, ErrorKindMalformed, verr.Kind)
	assert.Equal(t, "requirements_analysis", verr.Stage)
}

func TestDecodeWrongType(t *testing.T) {
	// A string where an array is expected maps to a wrong_type error naming the field.
	raw := `{"requirements": "just one", "dependencies": []}`

	_, verr := Decode[Requirements]("requirements_analysis", raw)
	require.NotNil(t, verr)
	assert.Equal(t, ErrorKindWrongType, verr.Kind)
	assert.Equal(t, "requirements", verr.Field)
}

func TestDecodeMissingField(t *testing.T) {
	_, verr := Decode[Design]("design", `{"components": ["api"]}`)
	require.NotNil(t, verr)
	assert.Equal(t, ErrorKindMissing, verr.Kind)
	assert.Equal(t, "architecture", verr.Field)
}

// =============================================================================
// PAYLOAD VALIDATION TESTS
// =============================================================================

func TestManifestRejectsDuplicatePaths(t *testing.T) {
	manifest := FileManifest{Files: []PlannedFile{
		{Path: "main.py", Purpose: "entry", Type: FileTypeSource},
		{Path: "main.py", Purpose: "again", Type: FileTypeSource},
	}}

	verr := manifest.Validate()
	require.NotNil(t, verr)
	assert.Equal(t, ErrorKindConstraint, verr.Kind)
	assert.Contains(t, verr.Reason, "duplicate")
}

func TestManifestRejectsUnknownFileType(t *testing.T) {
	manifest := FileManifest{Files: []PlannedFile{
		{Path: "main.py", Purpose: "entry", Type: "script"},
	}}

	verr := manifest.Validate()
	require.NotNil(t, verr)
	assert.Equal(t, "files[0].type", verr.Field)
}

func TestManifestRejectsTraversingPath(t *testing.T) {
	for _, path := range []string{"/etc/passwd", "../outside.py", "a/../../b.py"} {
		manifest := FileManifest{Files: []PlannedFile{
			{Path: path, Purpose: "p", Type: FileTypeSource},
		}}
		verr := manifest.Validate()
		require.NotNil(t, verr, "path %q should be rejected", path)
		assert.Equal(t, ErrorKindConstraint, verr.Kind)
	}
}

func TestCompletenessReportConsistency(t *testing.T) {
	// Incomplete reports must name at least one gap.
	report := CompletenessReport{Complete: false}
	verr := report.Validate()
	require.NotNil(t, verr)
	assert.Equal(t, "missing_elements", verr.Field)

	report = CompletenessReport{Complete: true}
	assert.Nil(t, report.Validate())
}

func TestFileSetRequiresContent(t *testing.T) {
	set := FileSet{Files: []GeneratedFile{{Path: "main.py", Language: "python"}}}
	verr := set.Validate()
	require.NotNil(t, verr)
	assert.Equal(t, "files[0].content", verr.Field)
}

func TestFileSetAsMap(t *testing.T) {
	set := FileSet{Files: []GeneratedFile{
		{Path: "a.py", Content: "old"},
		{Path: "b.py", Content: "b"},
		{Path: "a.py", Content: "new"},
	}}

	files := set.AsMap()
	assert.Len(t, files, 2)
	assert.Equal(t, "new", files["a.py"])
}

// =============================================================================
// DOCUMENTATION RENDERING
// =============================================================================

func TestDocumentationRender(t *testing.T) {
	doc := Documentation{
		Overview:     "Calculator\nA small calculator package.",
		Installation: "pip install -r requirements.txt",
		Usage:        "python main.py",
		FileDescriptions: map[string]string{
			"main.py":       "entry point",
			"calculator.py": "arithmetic operations",
		},
	}

	out := doc.Render()
	assert.Contains(t, out, "# Calculator")
	assert.Contains(t, out, "## Installation")
	assert.Contains(t, out, "## Usage")
	// File structure entries are backticked and listed in sorted order.
	calcEntry := strings.Index(out, "`calculator.py`")
	mainEntry := strings.Index(out, "`main.py`")
	require.NotEqual(t, -1, calcEntry)
	require.NotEqual(t, -1, mainEntry)
	assert.Less(t, calcEntry, mainEntry)
}
