//go:build !integration

package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects the shared logger output for the duration of f.
func captureOutput(t *testing.T, f func()) string {
	t.Helper()
	var buf bytes.Buffer
	old := output
	output = &buf
	t.Cleanup(func() { output = old })
	f()
	return buf.String()
}

func enabledLogger(namespace string) *Logger {
	return &Logger{namespace: namespace, enabled: true}
}

func TestComputeEnabled(t *testing.T) {
	tests := []struct {
		name      string
		debug     string
		namespace string
		enabled   bool
	}{
		{name: "empty DEBUG disables everything", debug: "", namespace: "parser:loader", enabled: false},
		{name: "wildcard enables everything", debug: "*", namespace: "parser:loader", enabled: true},
		{name: "exact match", debug: "parser:loader", namespace: "parser:loader", enabled: true},
		{name: "exact match other namespace", debug: "parser:loader", namespace: "cli:import", enabled: false},
		{name: "prefix wildcard", debug: "parser:*", namespace: "parser:schema_validation", enabled: true},
		{name: "prefix wildcard nested", debug: "workflow:*", namespace: "workflow:unit:registry", enabled: true},
		{name: "prefix wildcard other prefix", debug: "parser:*", namespace: "codegen:generator", enabled: false},
		{name: "second pattern matches", debug: "parser:*, cli:*", namespace: "cli:import", enabled: true},
		{name: "exclusion wins", debug: "cli:*,-cli:watch", namespace: "cli:watch", enabled: false},
		{name: "exclusion leaves others", debug: "cli:*,-cli:watch", namespace: "cli:import", enabled: true},
		{name: "exclusion wildcard", debug: "*,-parser:*", namespace: "parser:loader", enabled: false},
		{name: "suffix wildcard", debug: "*:registry", namespace: "workflow:registry", enabled: true},
		{name: "middle wildcard", debug: "workflow:*:registry", namespace: "workflow:unit:registry", enabled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.enabled, computeEnabled(tt.debug, tt.namespace),
				"computeEnabled(%q, %q)", tt.debug, tt.namespace)
		})
	}
}

func TestMatchPattern(t *testing.T) {
	assert.True(t, matchPattern("a:b", "*"), "bare wildcard matches")
	assert.True(t, matchPattern("a:b", "a:*"), "prefix wildcard matches")
	assert.True(t, matchPattern("a:b", "*:b"), "suffix wildcard matches")
	assert.False(t, matchPattern("a:b", "a:c"), "different namespace does not match")
	assert.False(t, matchPattern("ab", "ab*b"), "prefix and suffix must not overlap")
}

func TestLoggerPrintf(t *testing.T) {
	l := enabledLogger("codegen:generator")
	out := captureOutput(t, func() {
		l.Printf("emitted %d files for %s", 3, "ci.yml")
	})

	assert.True(t, strings.HasPrefix(out, "codegen:generator emitted 3 files for ci.yml +"), "unexpected output %q", out)
	assert.True(t, strings.HasSuffix(out, "\n"), "each log line ends with a newline")
}

func TestLoggerDisabledWritesNothing(t *testing.T) {
	l := &Logger{namespace: "parser:loader", enabled: false}
	out := captureOutput(t, func() {
		l.Print("hidden")
		l.Printf("hidden %d", 1)
	})
	assert.Empty(t, out, "disabled logger must not write")
}

func TestSelectColorDisabledWithoutTTY(t *testing.T) {
	old := isTTY
	isTTY = false
	t.Cleanup(func() { isTTY = old })

	assert.Empty(t, selectColor("parser:loader"), "no color when stderr is not a terminal")
}

func TestSlogHandler(t *testing.T) {
	l := enabledLogger("cli:mcp")
	logger := slog.New(NewSlogHandler(l)).With("server", "flowgen").WithGroup("req")

	out := captureOutput(t, func() {
		logger.Info("tool called", "tool", "validate")
	})

	require.NotEmpty(t, out, "slog record should be written")
	assert.Contains(t, out, "[INFO] tool called", "level and message")
	assert.Contains(t, out, "server=flowgen", "handler attrs are kept")
	assert.Contains(t, out, "req.tool=validate", "group qualifies record attrs")
}

func TestSlogHandlerDisabled(t *testing.T) {
	h := NewSlogHandler(&Logger{namespace: "cli:mcp"})
	assert.False(t, h.Enabled(context.Background(), slog.LevelError), "handler follows logger enablement")
}
