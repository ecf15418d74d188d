package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectCommandTable(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{
			name:  "python with requirements",
			files: map[string]string{"requirements.txt": "", "main.py": "", "test_main.py": ""},
			want:  "pip install -r requirements.txt && python -m pytest -v",
		},
		{
			name:  "go module",
			files: map[string]string{"go.mod": "module x", "main.go": ""},
			want:  "go test ./...",
		},
		{
			name:  "node package",
			files: map[string]string{"package.json": "{}", "index.js": ""},
			want:  "npm install && npm test",
		},
		{
			name:  "bare python entry file",
			files: map[string]string{"main.py": "print('hi')"},
			want:  "python main.py",
		},
		{
			name:  "unrecognized project",
			files: map[string]string{"README.md": ""},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectCommand(tt.files))
		})
	}
}

func TestDetectCommandPrefersRequirementsOverEntry(t *testing.T) {
	files := map[string]string{"requirements.txt": "", "main.py": ""}
	assert.Contains(t, DetectCommand(files), "pytest")
}

func TestResultOK(t *testing.T) {
	assert.True(t, (&Result{ExitStatus: 0}).OK())
	// No tests collected is not a code failure.
	assert.True(t, (&Result{ExitStatus: 5}).OK())
	assert.False(t, (&Result{ExitStatus: 1}).OK())
	assert.False(t, (&Result{ExitStatus: 0, TimedOut: true}).OK())
}

func TestResultLog(t *testing.T) {
	r := &Result{Stdout: "2 passed", Stderr: "warning: deprecated", TimedOut: false}
	log := r.Log()
	assert.Contains(t, log, "2 passed")
	assert.Contains(t, log, "warning: deprecated")

	timedOut := &Result{TimedOut: true}
	assert.Equal(t, "execution timed out", timedOut.Log())
}
