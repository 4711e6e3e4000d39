//go:build !integration

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/githubnext/gh-flowgen/pkg/advisory"
	"github.com/githubnext/gh-flowgen/pkg/codegen"
	"github.com/githubnext/gh-flowgen/pkg/types"
	"github.com/githubnext/gh-flowgen/pkg/workflow"
)

const ciPipeline = `name: CI
on: push
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
      - run: make test
`

const setupUnit = `name: Setup
description: Install the toolchain
inputs:
  version:
    description: Toolchain version
    required: true
runs:
  using: composite
  steps:
    - run: ./install.sh "${{ inputs.version }}"
      shell: bash
`

func usingSetup(version string) string {
	return `on: push
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - uses: ./.github/actions/setup
        with:
          version: "` + version + `"
`
}

func writeTestFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig(root string, paths ...string) ImportConfig {
	return ImportConfig{
		Paths:   paths,
		Root:    root,
		OutDir:  filepath.Join(root, "gen"),
		Jobs:    2,
		Checker: advisory.StaticChecker{},
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
}

func TestRunImport_GeneratesPipeline(t *testing.T) {
	root := t.TempDir()
	ci := writeTestFile(t, root, ".github/workflows/ci.yml", ciPipeline)

	result, err := RunImport(context.Background(), testConfig(root, ci))
	require.NoError(t, err)

	require.Len(t, result.Pipelines, 1)
	file := result.Pipelines[0]
	assert.Equal(t, "ci_workflow.go", file.Path)
	assert.Equal(t, ".github/workflows/ci.yml", file.Source)
	assert.Contains(t, string(file.Content), "package gen", "package defaults to the output directory name")

	dest := filepath.Join(root, "gen", "ci_workflow.go")
	assert.Equal(t, []string{dest}, result.Written)
	written, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, file.Content, written)

	assert.Equal(t, StageGenerated, result.Stages[ci])
	assert.True(t, result.Report.Valid)
	assert.Empty(t, result.Report.Errors)
}

func TestRunImport_Idempotent(t *testing.T) {
	root := t.TempDir()
	ci := writeTestFile(t, root, ".github/workflows/ci.yml", ciPipeline)
	config := testConfig(root, ci)

	first, err := RunImport(context.Background(), config)
	require.NoError(t, err)
	require.Len(t, first.Written, 1)
	before, err := os.Stat(first.Written[0])
	require.NoError(t, err)

	second, err := RunImport(context.Background(), config)
	require.NoError(t, err)
	assert.Empty(t, second.Written, "unchanged input produces no writes")
	assert.Equal(t, first.Pipelines[0].Content, second.Pipelines[0].Content)

	after, err := os.Stat(first.Written[0])
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestRunImport_MissingJobs(t *testing.T) {
	root := t.TempDir()
	path := writeTestFile(t, root, "no-jobs.yml", "name: No Jobs\non: push\n")

	config := testConfig(root, path)
	config.ValidateOnly = true
	result, err := RunImport(context.Background(), config)
	require.Error(t, err)
	assert.Equal(t, "validation failed: 1 error(s) found", err.Error())

	require.NotNil(t, result)
	assert.False(t, result.Report.Valid)
	require.Len(t, result.Report.Errors, 1)
	issue := result.Report.Errors[0]
	assert.Equal(t, "workflow-jobs", issue.Rule)
	assert.Equal(t, "schema", issue.Type)
	assert.Equal(t, "no-jobs.yml", issue.File)
}

func TestRunImport_StrictMode(t *testing.T) {
	root := t.TempDir()
	path := writeTestFile(t, root, ".github/workflows/ci.yml", `name: Test
on: push
jobs:
  test:
    runs-on: ubuntu-latest
    strategy:
      matrix:
        node-version: [18, 20]
    steps:
      - run: echo ${{ matrix.python-version }}
      - uses: ./.github/actions/missing
`)

	config := testConfig(root, path)
	result, err := RunImport(context.Background(), config)
	require.NoError(t, err, "warnings do not fail the default policy")
	assert.Len(t, result.Report.Warnings, 2)

	config.Strict = true
	config.OverwriteExisting = true
	result, err = RunImport(context.Background(), config)
	require.Error(t, err)
	assert.Equal(t, "strict mode: 2 warning(s) found", err.Error())
	assert.True(t, result.Report.Valid, "warnings alone keep the report valid")
	assert.FileExists(t, filepath.Join(root, "gen", "ci_workflow.go"), "strict mode still writes files")

	rules := make([]string, 0, 2)
	for _, w := range result.Report.Warnings {
		rules = append(rules, w.Rule)
	}
	assert.ElementsMatch(t, []string{"expression-matrix", "unit-not-found"}, rules)
}

func TestRunImport_ValidateOnlyStopsBeforeGeneration(t *testing.T) {
	root := t.TempDir()
	ci := writeTestFile(t, root, ".github/workflows/ci.yml", ciPipeline)

	config := testConfig(root, ci)
	config.ValidateOnly = true
	result, err := RunImport(context.Background(), config)
	require.NoError(t, err)

	assert.Equal(t, StageResolved, result.Stages[ci])
	assert.Empty(t, result.Pipelines)
	assert.Empty(t, result.Written)
	assert.NoDirExists(t, filepath.Join(root, "gen"))
}

func TestRunImport_StageSkipping(t *testing.T) {
	root := t.TempDir()
	path := writeTestFile(t, root, "ci.yml", `on: push
jobs:
  build:
    runs-on: ubuntu-latest
    env:
      DB_PASSWORD: hunter2hunter2
    steps:
      - run: make
`)

	tests := []struct {
		name      string
		skip      func(*ImportConfig)
		wantRules []string
	}{
		{
			name:      "all stages",
			skip:      func(*ImportConfig) {},
			wantRules: []string{"security-credential"},
		},
		{
			name:      "security skipped",
			skip:      func(c *ImportConfig) { c.SkipSecurityCheck = true },
			wantRules: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig(root, path)
			config.ValidateOnly = true
			tt.skip(&config)

			result, err := RunImport(context.Background(), config)
			require.NoError(t, err)

			var rules []string
			for _, issue := range result.Issues {
				rules = append(rules, issue.Rule)
			}
			assert.Equal(t, tt.wantRules, rules)
			assert.Equal(t, StageResolved, result.Stages[path], "a skipped stage is passed through")
		})
	}
}

func TestRunImport_SchemaSkipped(t *testing.T) {
	root := t.TempDir()
	path := writeTestFile(t, root, "no-jobs.yml", "name: No Jobs\non: push\n")

	config := testConfig(root, path)
	config.ValidateOnly = true
	config.SkipSchemaCheck = true
	result, err := RunImport(context.Background(), config)
	require.NoError(t, err)
	assert.Empty(t, result.Issues.OfKind(types.KindSchema))
}

func TestRunImport_AdvisoryFailureDegradesToWarning(t *testing.T) {
	root := t.TempDir()
	path := writeTestFile(t, root, "ci.yml", `on: push
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4.1.0
`)

	config := testConfig(root, path)
	config.Checker = advisory.StaticChecker{Err: errors.New("rate limited")}
	result, err := RunImport(context.Background(), config)
	require.NoError(t, err)

	require.Len(t, result.Report.Warnings, 1)
	warning := result.Report.Warnings[0]
	assert.Equal(t, "vulnerability", warning.Type)
	assert.Equal(t, "advisory-lookup", warning.Rule)
	assert.Contains(t, warning.Message, "rate limited")
	assert.Len(t, result.Pipelines, 1, "the file is still generated")
}

func TestRunImport_AdvisoryMatch(t *testing.T) {
	root := t.TempDir()
	path := writeTestFile(t, root, "ci.yml", `on: push
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - uses: octo-org/setup-tool@v1.1.0
`)

	config := testConfig(root, path)
	config.ValidateOnly = true
	config.Checker = advisory.StaticChecker{Advisories: map[string][]advisory.Advisory{
		"octo-org/setup-tool": {{
			GHSAID:   "GHSA-xxxx-yyyy-zzzz",
			Summary:  "Command injection",
			Severity: "high",
			Vulnerabilities: []advisory.Vulnerability{{
				Package:                advisory.Package{Ecosystem: "actions", Name: "octo-org/setup-tool"},
				VulnerableVersionRange: "< 1.2.0",
				FirstPatchedVersion:    "1.2.0",
			}},
		}},
	}}

	result, err := RunImport(context.Background(), config)
	require.NoError(t, err, "advisories are warnings")
	require.Len(t, result.Report.Warnings, 1)
	assert.Equal(t, "advisory", result.Report.Warnings[0].Rule)
	assert.Equal(t, 6, result.Report.Warnings[0].Line)
}

func TestRunImport_SyntaxErrorIsFatalForThatFileOnly(t *testing.T) {
	root := t.TempDir()
	bad := writeTestFile(t, root, "bad.yml", "on: push\njobs:\n  a:\n    runs-on: x\n  a:\n    runs-on: y\n")
	good := writeTestFile(t, root, "good.yml", ciPipeline)

	result, err := RunImport(context.Background(), testConfig(root, bad, good))
	require.Error(t, err)
	assert.Equal(t, "import failed: 1 error(s) found", err.Error())

	assert.Equal(t, StageLoaded, result.Stages[bad])
	assert.Equal(t, StageGenerated, result.Stages[good])
	require.Len(t, result.Pipelines, 1)
	assert.Equal(t, "good_workflow.go", result.Pipelines[0].Path)

	require.Len(t, result.Report.Errors, 1)
	assert.Equal(t, "syntax", result.Report.Errors[0].Type)
	assert.Equal(t, "bad.yml", result.Report.Errors[0].File)
	assert.Positive(t, result.Report.Errors[0].Line)
}

func TestRunImport_LocalUnitDedup(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, ".github/actions/setup/action.yml", setupUnit)
	writeTestFile(t, root, ".github/workflows/ci.yml", usingSetup("1.22"))
	writeTestFile(t, root, ".github/workflows/release.yml", usingSetup("1.23"))

	config := testConfig(root, root)
	config.ExtractLocalUnits = true
	config.UnitsImportPath = "example.com/app/gen/units"
	result, err := RunImport(context.Background(), config)
	require.NoError(t, err)

	assert.Len(t, result.Pipelines, 2)
	require.Len(t, result.Units, 1, "one unit file for one definition")
	assert.Equal(t, "units/setup_unit.go", result.Units[0].Path)
	assert.Equal(t, codegen.FileUnit, result.Units[0].Kind)
	assert.FileExists(t, filepath.Join(root, "gen", "units", "setup_unit.go"))

	for _, p := range result.Pipelines {
		assert.Contains(t, string(p.Content), `"example.com/app/gen/units"`)
	}
	assert.Equal(t, StageResolved, result.Stages[filepath.Join(root, ".github", "actions", "setup", "action.yml")],
		"scanned units are validated, not generated on their own")
	assert.Len(t, result.Written, 3)
}

func TestRunImport_UnitIssuesReportedOnce(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, ".github/actions/setup/action.yml", `name: Setup
inputs:
  version:
    description: Toolchain version
runs:
  using: composite
  steps:
    - run: echo ${{ inputs.missing }}
      shell: bash
`)
	writeTestFile(t, root, ".github/workflows/ci.yml", usingSetup("1"))
	writeTestFile(t, root, ".github/workflows/release.yml", usingSetup("2"))

	config := testConfig(root, root)
	config.ValidateOnly = true
	result, err := RunImport(context.Background(), config)
	require.NoError(t, err)

	expr := result.Issues.OfKind(types.KindExpression)
	assert.Len(t, expr, 1, "the unit definition is checked by the scan and by two resolutions: %v", expr)
}

func TestRunImport_Preview(t *testing.T) {
	root := t.TempDir()
	ci := writeTestFile(t, root, ".github/workflows/ci.yml", ciPipeline)

	var stdout bytes.Buffer
	config := testConfig(root, ci)
	config.Preview = true
	config.Stdout = &stdout
	result, err := RunImport(context.Background(), config)
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "// ==> gen/ci_workflow.go <==")
	assert.Contains(t, stdout.String(), "func CI() *flow.Workflow {")
	assert.Empty(t, result.Written)
	assert.NoDirExists(t, filepath.Join(root, "gen"))
}

func TestRunImport_ValidationReportFile(t *testing.T) {
	root := t.TempDir()
	path := writeTestFile(t, root, "no-jobs.yml", "name: No Jobs\non: push\n")
	reportPath := filepath.Join(root, "out", "report.json")

	config := testConfig(root, path)
	config.ValidateOnly = true
	config.ValidationReport = reportPath
	_, err := RunImport(context.Background(), config)
	require.Error(t, err)

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var report Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.False(t, report.Valid)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "workflow-jobs", report.Errors[0].Rule)
	assert.NotNil(t, report.Warnings)
}

func TestRunImport_ValidationReportStdout(t *testing.T) {
	root := t.TempDir()
	ci := writeTestFile(t, root, "ci.yml", ciPipeline)

	var stdout bytes.Buffer
	config := testConfig(root, ci)
	config.ValidateOnly = true
	config.ValidationReport = "-"
	config.Stdout = &stdout
	_, err := RunImport(context.Background(), config)
	require.NoError(t, err)
	assert.JSONEq(t, `{"valid": true, "errors": [], "warnings": []}`, stdout.String())
}

func TestRunImport_ExistingFileKept(t *testing.T) {
	root := t.TempDir()
	ci := writeTestFile(t, root, ".github/workflows/ci.yml", ciPipeline)
	dest := writeTestFile(t, root, "gen/ci_workflow.go", "package gen\n")

	tests := []struct {
		name        string
		overwrite   bool
		confirm     func(string) (bool, error)
		wantKept    bool
		wantWarning bool
	}{
		{name: "kept without overwrite", wantKept: true, wantWarning: true},
		{name: "declined prompt", confirm: func(string) (bool, error) { return false, nil }, wantKept: true, wantWarning: true},
		{name: "accepted prompt", confirm: func(string) (bool, error) { return true, nil }},
		{name: "overwrite flag", overwrite: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(dest, []byte("package gen\n"), 0o644))

			config := testConfig(root, ci)
			config.OverwriteExisting = tt.overwrite
			config.ConfirmOverwrite = tt.confirm
			result, err := RunImport(context.Background(), config)
			require.NoError(t, err)

			content, err := os.ReadFile(dest)
			require.NoError(t, err)
			if tt.wantKept {
				assert.Equal(t, "package gen\n", string(content))
				assert.Empty(t, result.Written)
			} else {
				assert.Equal(t, result.Pipelines[0].Content, content)
				assert.Equal(t, []string{dest}, result.Written)
			}

			kept := result.Issues.OfKind(types.KindIO)
			if tt.wantWarning {
				require.Len(t, kept, 1)
				assert.Equal(t, "existing-file", kept[0].Rule)
				assert.Equal(t, types.SeverityWarning, kept[0].Severity)
			} else {
				assert.Empty(t, kept)
			}
		})
	}
}

type recordingTypeGenerator struct {
	refs []string
}

func (g *recordingTypeGenerator) GenerateTypes(_ context.Context, refs []workflow.UnitReference, _ string) ([]codegen.GeneratedFile, error) {
	for _, ref := range refs {
		g.refs = append(g.refs, ref.Raw)
	}
	return []codegen.GeneratedFile{{Kind: codegen.FileUnit, Path: "types/checkout.go", Content: []byte("package types\n")}}, nil
}

func TestRunImport_TypeGenerator(t *testing.T) {
	root := t.TempDir()
	ci := writeTestFile(t, root, "ci.yml", ciPipeline)
	release := writeTestFile(t, root, "release.yml", ciPipeline)

	gen := &recordingTypeGenerator{}
	config := testConfig(root, ci, release)
	config.GenerateTypes = true
	config.TypeGenerator = gen
	result, err := RunImport(context.Background(), config)
	require.NoError(t, err)

	assert.Equal(t, []string{"actions/checkout@v4"}, gen.refs, "references are passed once")
	require.Len(t, result.Types, 1)
	assert.FileExists(t, filepath.Join(root, "gen", "types", "checkout.go"))
}

func TestRunImport_TypeGeneratorMissing(t *testing.T) {
	root := t.TempDir()
	ci := writeTestFile(t, root, "ci.yml", ciPipeline)

	var stderr bytes.Buffer
	config := testConfig(root, ci)
	config.GenerateTypes = true
	config.Stderr = &stderr
	_, err := RunImport(context.Background(), config)
	require.NoError(t, err)
	assert.Contains(t, stderr.String(), "No type generator is configured")
}

func TestRunImport_StrictModeIgnoresErrorsWithoutWarnings(t *testing.T) {
	root := t.TempDir()
	path := writeTestFile(t, root, "no-jobs.yml", "name: No Jobs\non: push\n")

	config := testConfig(root, path)
	config.Strict = true
	result, err := RunImport(context.Background(), config)
	require.NoError(t, err, "strict mode only adds the zero-warnings condition")
	assert.False(t, result.Report.Valid)
	require.Len(t, result.Report.Errors, 1)
	assert.Equal(t, "workflow-jobs", result.Report.Errors[0].Rule)
	assert.Empty(t, result.Report.Warnings)
}

func TestRunImport_TypeGeneratorFunc(t *testing.T) {
	root := t.TempDir()
	ci := writeTestFile(t, root, "ci.yml", ciPipeline)

	config := testConfig(root, ci)
	config.GenerateTypes = true
	config.TypeGenerator = TypeGeneratorFunc(func(context.Context, []workflow.UnitReference, string) ([]codegen.GeneratedFile, error) {
		return nil, errors.New("registry unavailable")
	})
	result, err := RunImport(context.Background(), config)
	require.NoError(t, err, "type generation errors are not critical")
	require.Len(t, result.Report.Errors, 1)
	assert.Equal(t, "type-generator", result.Report.Errors[0].Rule)
	assert.Equal(t, "reference", result.Report.Errors[0].Type)
	assert.FileExists(t, filepath.Join(root, "gen", "ci_workflow.go"), "pipelines are still written")
}

func TestRunImport_InvalidConfig(t *testing.T) {
	_, err := RunImport(context.Background(), ImportConfig{})
	require.Error(t, err)
	assert.Equal(t, "at least one path is required", err.Error())
}

func TestRunImport_MissingInput(t *testing.T) {
	root := t.TempDir()
	result, err := RunImport(context.Background(), testConfig(root, filepath.Join(root, "missing.yml")))
	require.Error(t, err)
	require.Len(t, result.Report.Errors, 1)
	assert.Equal(t, "io", result.Report.Errors[0].Type)
	assert.Contains(t, result.Report.Errors[0].Message, "cannot read input")
}

func TestRunImport_ConsolePrintsIssues(t *testing.T) {
	root := t.TempDir()
	path := writeTestFile(t, root, "no-jobs.yml", "name: No Jobs\non: push\n")

	var stderr bytes.Buffer
	config := testConfig(root, path)
	config.ValidateOnly = true
	config.Verbose = true
	config.Stderr = &stderr
	_, err := RunImport(context.Background(), config)
	require.Error(t, err)

	out := stderr.String()
	assert.Contains(t, out, "no-jobs.yml")
	assert.Contains(t, out, "[schema/workflow-jobs]")
	assert.Contains(t, out, "Validated 1 file(s): 1 error(s), 0 warning(s)")
	assert.Contains(t, out, "resolved", "verbose output lists the stage of each file")
}

func TestBatchError(t *testing.T) {
	warning := types.NewWarning(types.KindExpression, "a.yml", "expression-matrix", "w")
	schemaErr := types.NewError(types.KindSchema, "a.yml", "workflow-jobs", "e")
	syntaxErr := types.NewError(types.KindSyntax, "a.yml", "", "s")

	tests := []struct {
		name    string
		config  ImportConfig
		issues  types.Issues
		wantErr string
	}{
		{name: "clean", issues: nil},
		{name: "default ignores schema errors", issues: types.Issues{schemaErr}},
		{name: "default fails on critical", issues: types.Issues{syntaxErr}, wantErr: "import failed: 1 error(s) found"},
		{name: "validate only fails on errors", config: ImportConfig{ValidateOnly: true}, issues: types.Issues{schemaErr}, wantErr: "validation failed: 1 error(s) found"},
		{name: "validate only passes warnings", config: ImportConfig{ValidateOnly: true}, issues: types.Issues{warning}},
		{name: "strict fails on warnings", config: ImportConfig{Strict: true}, issues: types.Issues{warning, warning}, wantErr: "strict mode: 2 warning(s) found"},
		{name: "strict counts errors alongside warnings", config: ImportConfig{Strict: true}, issues: types.Issues{schemaErr, warning}, wantErr: "strict mode: 1 error(s) and 1 warning(s) found"},
		{name: "strict passes schema errors without warnings", config: ImportConfig{Strict: true}, issues: types.Issues{schemaErr}},
		{name: "strict and validate only fail on errors", config: ImportConfig{Strict: true, ValidateOnly: true}, issues: types.Issues{schemaErr}, wantErr: "validation failed: 1 error(s) found"},
		{name: "type generator failure is not critical", issues: types.Issues{types.NewError(types.KindReference, "", "type-generator", "type generation failed: x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := batchError(tt.config, tt.issues)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestDedupeIssues(t *testing.T) {
	a := types.NewWarning(types.KindExpression, "a.yml", "expression-input", "unknown input").At(3, 5)
	b := types.NewWarning(types.KindExpression, "a.yml", "expression-input", "unknown input").At(4, 5)

	assert.Equal(t, types.Issues{a, b}, dedupeIssues(types.Issues{a, b, a}))
}

func TestPackageName(t *testing.T) {
	assert.Equal(t, "pipelines", packageName(ImportConfig{}, "/x/pipelines"))
	assert.Equal(t, "flowgen", packageName(ImportConfig{}, "/x/my-pipelines"), "invalid identifiers fall back")
	assert.Equal(t, "flowgen", packageName(ImportConfig{}, "/x/Pipelines"))
	assert.Equal(t, "flowgen", packageName(ImportConfig{}, "/x/go"), "keywords fall back")
	assert.Equal(t, "custom", packageName(ImportConfig{Package: "custom"}, "/x/pipelines"))
}
