//go:build !integration

package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/githubnext/gh-flowgen/pkg/types"
)

const matrixPipeline = `name: Test
on: push
jobs:
  test:
    runs-on: ubuntu-latest
    strategy:
      matrix:
        node-version: [18, 20]
    steps:
      - uses: actions/setup-node@v4
        with:
          node-version: ${{ matrix.node-version }}
`

func TestAnalyzeExpressions_MatrixKeyDeclared(t *testing.T) {
	doc := loadDocument(t, matrixPipeline)

	spans, issues := AnalyzeExpressions(doc)

	assert.Empty(t, issues, "declared matrix key should not warn")
	require.Len(t, spans, 1)
	assert.Equal(t, " matrix.node-version ", spans[0].Inner, "inner text is kept verbatim")
	assert.Equal(t, ClassMatrix, spans[0].Class)
	assert.Equal(t, OutcomeValid, spans[0].Outcome)
	assert.Equal(t, "jobs.test.steps[0].with.node-version", spans[0].Path)
}

func TestAnalyzeExpressions_MatrixKeyUnknown(t *testing.T) {
	doc := loadDocument(t, `name: Test
on: push
jobs:
  test:
    runs-on: ubuntu-latest
    strategy:
      matrix:
        node-version: [18, 20]
    steps:
      - run: echo ${{ matrix.python-version }}
`)

	spans, issues := AnalyzeExpressions(doc)

	require.Len(t, issues, 1, "exactly one warning expected")
	issue := issues[0]
	assert.Equal(t, types.KindExpression, issue.Kind)
	assert.Equal(t, types.SeverityWarning, issue.Severity)
	assert.Equal(t, "expression-matrix", issue.Rule)
	assert.Contains(t, issue.Message, "unknown matrix key: python-version")
	assert.Equal(t, 10, issue.Line, "warning should point at the run value")
	require.Len(t, spans, 1)
	assert.Equal(t, OutcomeWarning, spans[0].Outcome)
}

func TestAnalyzeExpressions_MappingKeys(t *testing.T) {
	doc := loadDocument(t, `name: Test
on: push
jobs:
  test:
    runs-on: ubuntu-latest
    strategy:
      matrix:
        node-version: [18, 20]
    env:
      "${{ matrix.k }}": x
    steps:
      - run: make
`)

	spans, issues := AnalyzeExpressions(doc)

	require.Len(t, spans, 1, "the key is lexed like any other string")
	assert.Equal(t, " matrix.k ", spans[0].Inner)
	assert.Equal(t, ClassMatrix, spans[0].Class)
	require.Len(t, issues, 1)
	assert.Equal(t, "expression-matrix", issues[0].Rule)
	assert.Contains(t, issues[0].Message, "unknown matrix key: k")
}

func TestAnalyzeExpressions_MatrixVariants(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		ref      string
		warnings int
	}{
		{
			name:     "include key",
			strategy: "matrix:\n        os: [linux]\n        include:\n          - os: linux\n            experimental: true",
			ref:      "matrix.experimental",
		},
		{
			name:     "dynamic matrix",
			strategy: "matrix: ${{ fromJSON(vars.matrix) }}",
			ref:      "matrix.anything",
		},
		{
			name:     "dynamic dimension",
			strategy: "matrix:\n        target: ${{ fromJSON(inputs.targets) }}",
			ref:      "matrix.anything",
		},
		{
			name:     "no strategy at all",
			strategy: "fail-fast: false",
			ref:      "matrix.os",
			warnings: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := loadDocument(t, "on: push\njobs:\n  test:\n    runs-on: ubuntu-latest\n    strategy:\n      "+tt.strategy+
				"\n    steps:\n      - run: echo ${{ "+tt.ref+" }}\n")
			_, issues := AnalyzeExpressions(doc)
			assert.Len(t, issues.OfKind(types.KindExpression).Warnings(), tt.warnings, "matrix warnings")
		})
	}
}

func TestAnalyzeExpressions_StepOrder(t *testing.T) {
	doc := loadDocument(t, `on: push
jobs:
  build:
    runs-on: ubuntu-latest
    outputs:
      sha: ${{ steps.meta.outputs.sha }}
    steps:
      - run: echo ${{ steps.meta.outputs.sha }}
      - id: meta
        run: echo "sha=1" >> "$GITHUB_OUTPUT"
      - run: echo ${{ steps.meta.outputs.sha }} ${{ steps.mata.outputs.sha }}
`)

	_, issues := AnalyzeExpressions(doc)

	require.Len(t, issues, 2, "forward reference and typo: %v", issues)
	assert.Equal(t, "jobs.build.steps[0].run: unknown step id: meta", issues[0].Message)
	assert.Equal(t, "expression-steps", issues[0].Rule)
	assert.Empty(t, issues[0].Hint, "no earlier step to suggest")
	assert.Equal(t, "jobs.build.steps[2].run: unknown step id: mata", issues[1].Message)
	assert.Equal(t, "did you mean 'meta'?", issues[1].Hint)
}

func TestAnalyzeExpressions_Needs(t *testing.T) {
	doc := loadDocument(t, `on: push
jobs:
  test:
    runs-on: ubuntu-latest
    steps:
      - run: "true"
  deploy:
    needs: test
    if: needs.test.result == 'success'
    runs-on: ubuntu-latest
    steps:
      - run: echo ${{ needs.build.outputs.version }}
`)

	_, issues := AnalyzeExpressions(doc)

	require.Len(t, issues, 1, "only the unlisted job should warn")
	assert.Equal(t, "expression-needs", issues[0].Rule)
	assert.Contains(t, issues[0].Message, "job 'build' is not listed in needs")
}

func TestAnalyzeExpressions_Inputs(t *testing.T) {
	withInputs := `on:
  workflow_dispatch:
    inputs:
      environment:
        type: string
jobs:
  deploy:
    runs-on: ubuntu-latest
    steps:
      - run: echo ${{ inputs.enviroment }} ${{ inputs.environment }}
`
	_, issues := AnalyzeExpressions(loadDocument(t, withInputs))
	require.Len(t, issues, 1)
	assert.Equal(t, "expression-inputs", issues[0].Rule)
	assert.Contains(t, issues[0].Message, "unknown input: enviroment")
	assert.Equal(t, "did you mean 'environment'?", issues[0].Hint)

	withoutInputs := `on: push
jobs:
  deploy:
    runs-on: ubuntu-latest
    steps:
      - run: echo ${{ inputs.anything }}
`
	_, issues = AnalyzeExpressions(loadDocument(t, withoutInputs))
	assert.Empty(t, issues, "inputs are not checked when none are declared")
}

func TestAnalyzeExpressions_UnknownRootIsInformational(t *testing.T) {
	doc := loadDocument(t, `on: push
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - run: echo ${{ newcontext.value }}
`)

	spans, issues := AnalyzeExpressions(doc)

	assert.Empty(t, issues, "unknown roots are never issues")
	require.Len(t, spans, 1, "span is still recorded")
	assert.Equal(t, OutcomeInfo, spans[0].Outcome)
	assert.Equal(t, "unrecognized context root 'newcontext'", spans[0].Reason)
	assert.Equal(t, " newcontext.value ", spans[0].Inner)
}

func TestAnalyzeExpressions_DeduplicatesWarnings(t *testing.T) {
	doc := loadDocument(t, `on: push
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - run: echo ${{ matrix.os }} ${{ matrix.os }}
`)

	spans, issues := AnalyzeExpressions(doc)

	assert.Len(t, spans, 2, "both spans are recorded")
	assert.Len(t, issues, 1, "one warning per location and message")
}

func TestAnalyzeUnitExpressions(t *testing.T) {
	src := loadUnitSource(t, `name: Setup
inputs:
  version:
    description: Tool version
runs:
  using: composite
  steps:
    - id: install
      run: install ${{ inputs.version }} ${{ inputs.versoin }}
      shell: bash
    - run: echo ${{ steps.install.outputs.path }}
      shell: bash
`)

	spans, issues := AnalyzeUnitExpressions(src, []string{"version"})

	assert.Len(t, spans, 3)
	require.Len(t, issues, 1, "misspelled input should warn")
	assert.Equal(t, "runs.steps[0].run: unknown input: versoin", issues[0].Message)
	assert.Equal(t, "did you mean 'version'?", issues[0].Hint)
}
