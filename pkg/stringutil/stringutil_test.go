//go:build !integration

package stringutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{name: "short string untouched", input: "hello", maxLen: 10, expected: "hello"},
		{name: "exact length untouched", input: "hello", maxLen: 5, expected: "hello"},
		{name: "long string cut", input: "hello world", maxLen: 8, expected: "hello..."},
		{name: "tiny limit has no ellipsis", input: "hello", maxLen: 2, expected: "he"},
		{name: "unicode counted as runes", input: "héllo wörld", maxLen: 7, expected: "héll..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Truncate(tt.input, tt.maxLen), "Truncate(%q, %d)", tt.input, tt.maxLen)
		})
	}
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "a/b/c.yml", NormalizePath("a/./b//c.yml"), "cleaned")
	assert.Equal(t, "../x", NormalizePath("a/../../x"), "parent refs kept")
	assert.Empty(t, NormalizePath(""), "empty stays empty")
}

func TestYAMLExtensions(t *testing.T) {
	assert.Equal(t, "ci", TrimYAMLExtension("ci.yml"))
	assert.Equal(t, "release", TrimYAMLExtension("release.yaml"))
	assert.Equal(t, "notes.md", TrimYAMLExtension("notes.md"))

	assert.True(t, IsYAMLFile("CI.YML"), "extension check is case insensitive")
	assert.False(t, IsYAMLFile("main.go"))
}
