//go:build !integration

package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyExpression(t *testing.T) {
	tests := []struct {
		name      string
		inner     string
		wantClass ExpressionClass
		wantRef   string
		wantKey   string
	}{
		{name: "pipeline metadata", inner: " github.event.issue.title ", wantClass: ClassPipeline, wantRef: "github.event.issue.title", wantKey: "event"},
		{name: "vars", inner: "vars.region", wantClass: ClassPipeline, wantRef: "vars.region", wantKey: "region"},
		{name: "env", inner: "env.GO_VERSION", wantClass: ClassEnv, wantKey: "GO_VERSION"},
		{name: "secrets", inner: "secrets.token", wantClass: ClassSecrets, wantRef: "secrets.token", wantKey: "token"},
		{name: "inputs", inner: "inputs.environment", wantClass: ClassInputs, wantRef: "inputs.environment", wantKey: "environment"},
		{name: "matrix with dash", inner: "matrix.node-version", wantClass: ClassMatrix, wantRef: "matrix.node-version", wantKey: "node-version"},
		{name: "matrix bracket", inner: "matrix['node-version']", wantClass: ClassMatrix, wantKey: "node-version"},
		{name: "step output", inner: "steps.build.outputs.sha", wantClass: ClassSteps, wantRef: "steps.build.outputs.sha", wantKey: "build"},
		{name: "needs", inner: "needs.test.outputs.version", wantClass: ClassNeeds, wantKey: "test"},
		{name: "runner", inner: "runner.os", wantClass: ClassRunner, wantKey: "os"},
		{name: "strategy", inner: "strategy.job-index", wantClass: ClassJob, wantKey: "job-index"},
		{name: "reference wins over status", inner: "success() && needs.test.result == 'success'", wantClass: ClassNeeds, wantKey: "test"},
		{name: "status function", inner: "always()", wantClass: ClassStatus},
		{name: "string literal", inner: "'main'", wantClass: ClassLiteral},
		{name: "comparison of literals", inner: "1 == 1", wantClass: ClassLiteral},
		{name: "function argument", inner: "fromJSON(steps.meta.outputs.json).tags", wantClass: ClassSteps, wantKey: "meta"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ClassifyExpression(tt.inner)
			assert.True(t, c.Parsed, "expression should parse")
			assert.Equal(t, tt.wantClass, c.Class, "class of %q", tt.inner)
			if tt.wantKey == "" {
				return
			}
			require.NotEmpty(t, c.Refs, "references of %q", tt.inner)
			assert.True(t, equalFoldAny(c.Refs[0].Key(), tt.wantKey), "key %q, want %q", c.Refs[0].Key(), tt.wantKey)
			if tt.wantRef != "" {
				assert.Equal(t, tt.wantRef, c.Refs[0].String(), "dotted reference")
			}
		})
	}
}

func TestClassifyExpression_UnknownRoot(t *testing.T) {
	c := ClassifyExpression("foo.bar == 'x'")
	assert.True(t, c.Parsed, "expression should parse")
	assert.Equal(t, ClassUnclassified, c.Class, "unknown roots are unclassified")
	assert.Equal(t, "foo", c.UnknownRoot, "unknown root name")
	assert.Empty(t, c.Refs, "unknown roots produce no references")
}

func TestClassifyExpression_ObjectFilter(t *testing.T) {
	c := ClassifyExpression("steps.*.outcome")
	require.Len(t, c.Refs, 1)
	assert.Equal(t, []string{"*", "outcome"}, c.Refs[0].Path, "filter path")
	assert.Empty(t, c.Refs[0].Key(), "filters have no static key")
}

func TestClassifyExpression_PrefixFallback(t *testing.T) {
	c := ClassifyExpression("matrix.os ==")
	assert.False(t, c.Parsed, "incomplete expression should not parse")
	assert.Equal(t, ClassMatrix, c.Class, "class from the leading reference")
	require.Len(t, c.Refs, 1)
	assert.Equal(t, "os", c.Refs[0].Key(), "key from the leading reference")

	c = ClassifyExpression("%%% nonsense")
	assert.False(t, c.Parsed)
	assert.Equal(t, ClassUnclassified, c.Class, "garbage is unclassified")
}

func TestSplitAccessors(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitAccessors(".a['b'].c"))
	assert.Equal(t, []string{"node-version"}, splitAccessors("[ 'node-version' ]"))
	assert.Nil(t, splitAccessors(""))
}

func equalFoldAny(a, b string) bool {
	return containsFold([]string{a}, b)
}
