package typeutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// STRING TESTS
// =============================================================================

func TestSafeString(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		want     string
		wantBool bool
	}{
		{"valid string", "hello", "hello", true},
		{"empty string", "", "", true},
		{"nil value", nil, "", false},
		{"wrong type int", 42, "", false},
		{"wrong type bool", true, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SafeString(tt.input)
			assert.Equal(t, tt.wantBool, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSafeStringDefault(t *testing.T) {
	assert.Equal(t, "value", SafeStringDefault("value", "fallback"))
	assert.Equal(t, "fallback", SafeStringDefault(nil, "fallback"))
	assert.Equal(t, "fallback", SafeStringDefault(123, "fallback"))
}

// =============================================================================
// INT TESTS
// =============================================================================

func TestSafeInt(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		want     int
		wantBool bool
	}{
		{"int", 7, 7, true},
		{"int64", int64(7), 7, true},
		{"int32", int32(7), 7, true},
		{"float64 from JSON", float64(7), 7, true},
		{"float32", float32(7), 7, true},
		{"nil value", nil, 0, false},
		{"wrong type string", "7", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SafeInt(tt.input)
			assert.Equal(t, tt.wantBool, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSafeIntDefault(t *testing.T) {
	assert.Equal(t, 5, SafeIntDefault(5, 9))
	assert.Equal(t, 9, SafeIntDefault(nil, 9))
	assert.Equal(t, 9, SafeIntDefault("five", 9))
}

// =============================================================================
// SLICE AND MAP TESTS
// =============================================================================

func TestSafeStringSlice(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		want     []string
		wantBool bool
	}{
		{"typed slice", []string{"a", "b"}, []string{"a", "b"}, true},
		{"any slice from JSON", []any{"a", "b"}, []string{"a", "b"}, true},
		{"any slice skips non-strings", []any{"a", 1, "b"}, []string{"a", "b"}, true},
		{"nil value", nil, nil, false},
		{"wrong type", "a,b", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SafeStringSlice(tt.input)
			assert.Equal(t, tt.wantBool, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSafeStringMap(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		want     map[string]string
		wantBool bool
	}{
		{"typed map", map[string]string{"k": "v"}, map[string]string{"k": "v"}, true},
		{"any map from JSON", map[string]any{"k": "v"}, map[string]string{"k": "v"}, true},
		{"any map skips non-strings", map[string]any{"k": "v", "n": 1}, map[string]string{"k": "v"}, true},
		{"nil value", nil, nil, false},
		{"wrong type", []string{"k"}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SafeStringMap(tt.input)
			assert.Equal(t, tt.wantBool, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
