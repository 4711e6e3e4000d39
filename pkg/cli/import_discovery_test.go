//go:build !integration

package cli

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/githubnext/gh-flowgen/pkg/advisory"
	"github.com/githubnext/gh-flowgen/pkg/codegen"
	"github.com/githubnext/gh-flowgen/pkg/parser"
	"github.com/githubnext/gh-flowgen/pkg/types"
)

func TestDiscoverInputs(t *testing.T) {
	root := t.TempDir()
	ci := writeTestFile(t, root, ".github/workflows/ci.yml", ciPipeline)
	unit := writeTestFile(t, root, ".github/actions/setup/action.yml", setupUnit)
	writeTestFile(t, root, "node_modules/pkg/ci.yml", ciPipeline)
	writeTestFile(t, root, "gen/old.yml", ciPipeline)
	writeTestFile(t, root, "config/settings.yml", "key: value\n")
	writeTestFile(t, root, "README.md", "# readme\n")

	files, issues := discoverInputs([]string{root, ci}, filepath.Join(root, "gen"))
	assert.Empty(t, issues)
	assert.Equal(t, []inputFile{
		{path: unit, kind: parser.FileKindUnit},
		{path: ci, kind: parser.FileKindPipeline},
	}, files, "sorted, deduplicated, skipping vendored and output directories")
}

func TestDiscoverInputs_ExplicitFiles(t *testing.T) {
	root := t.TempDir()
	other := writeTestFile(t, root, "anything.yml", "key: value\n")
	unit := writeTestFile(t, root, "setup/action.yaml", setupUnit)

	files, issues := discoverInputs([]string{other, unit}, "")
	assert.Empty(t, issues)
	assert.Equal(t, []inputFile{
		{path: other, kind: parser.FileKindPipeline},
		{path: unit, kind: parser.FileKindUnit},
	}, files, "a named file is a pipeline unless named like a unit definition")
}

func TestDiscoverInputs_Missing(t *testing.T) {
	root := t.TempDir()
	missing := filepath.Join(root, "missing.yml")

	files, issues := discoverInputs([]string{missing}, "")
	assert.Empty(t, files)
	require.Len(t, issues, 1)
	assert.Equal(t, types.KindIO, issues[0].Kind)
	assert.Equal(t, missing, issues[0].File)
	assert.Equal(t, "cannot read input: no such file or directory", issues[0].Message)
}

func TestIsWithin(t *testing.T) {
	assert.True(t, isWithin("/a/b", "/a/b"))
	assert.True(t, isWithin("/a/b/c", "/a/b"))
	assert.False(t, isWithin("/a/bc", "/a/b"))
	assert.False(t, isWithin("/a", "/a/b"))
	assert.False(t, isWithin("/a/b", ""))
}

func TestStageRunner(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name      string
		rel       string
		content   string
		kind      parser.FileKind
		config    ImportConfig
		wantStage Stage
		wantFail  bool
		wantKinds []types.IssueKind
	}{
		{
			name:      "clean pipeline",
			rel:       "ci.yml",
			content:   ciPipeline,
			kind:      parser.FileKindPipeline,
			wantStage: StageVulnerabilityChecked,
		},
		{
			name:      "syntax error",
			rel:       "dup.yml",
			content:   "on: push\njobs:\n  a:\n    runs-on: x\n  a:\n    runs-on: y\n",
			kind:      parser.FileKindPipeline,
			wantStage: StageLoaded,
			wantFail:  true,
			wantKinds: []types.IssueKind{types.KindSyntax},
		},
		{
			name:      "best effort load accepts duplicates",
			rel:       "dup2.yml",
			content:   "on: push\njobs:\n  a:\n    runs-on: x\n  a:\n    runs-on: y\n",
			kind:      parser.FileKindPipeline,
			config:    ImportConfig{SkipSyntaxCheck: true},
			wantStage: StageVulnerabilityChecked,
		},
		{
			name:      "schema error is not fatal",
			rel:       "nojobs.yml",
			content:   "name: No Jobs\non: push\n",
			kind:      parser.FileKindPipeline,
			wantStage: StageVulnerabilityChecked,
			wantKinds: []types.IssueKind{types.KindSchema},
		},
		{
			name:      "needs cycle",
			rel:       "cycle.yml",
			content:   "on: push\njobs:\n  a:\n    runs-on: x\n    needs: b\n  b:\n    runs-on: x\n    needs: a\n",
			kind:      parser.FileKindPipeline,
			wantStage: StageVulnerabilityChecked,
			wantKinds: []types.IssueKind{types.KindSchema},
		},
		{
			name:      "unit definition",
			rel:       "setup/action.yml",
			content:   setupUnit,
			kind:      parser.FileKindUnit,
			wantStage: StageResolved,
		},
		{
			name:      "unit without runs",
			rel:       "broken/action.yml",
			content:   "name: Broken\n",
			kind:      parser.FileKindUnit,
			wantStage: StageResolved,
			wantKinds: []types.IssueKind{types.KindSchema},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTestFile(t, root, tt.rel, tt.content)
			runner := &stageRunner{config: tt.config, root: root, checker: advisory.StaticChecker{}}

			st := runner.run(context.Background(), inputFile{path: path, kind: tt.kind})
			assert.Equal(t, tt.wantStage, st.stage, "stage: %s", st.stage)
			assert.Equal(t, tt.wantFail, st.failed)

			var kinds []types.IssueKind
			for _, issue := range st.issues {
				if !slices.Contains(kinds, issue.Kind) {
					kinds = append(kinds, issue.Kind)
				}
			}
			assert.Equal(t, tt.wantKinds, kinds, "issues: %v", st.issues)
		})
	}
}

func TestStageRunner_UnreadableFile(t *testing.T) {
	runner := &stageRunner{}
	st := runner.run(context.Background(), inputFile{path: filepath.Join(t.TempDir(), "gone.yml"), kind: parser.FileKindPipeline})
	assert.True(t, st.failed)
	assert.Equal(t, StageIdle, st.stage)
	require.Len(t, st.issues, 1)
	assert.Equal(t, types.KindIO, st.issues[0].Kind)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "idle", StageIdle.String())
	assert.Equal(t, "vulnerability-checked", StageVulnerabilityChecked.String())
	assert.Equal(t, "reported", StageReported.String())
	assert.Equal(t, "unknown", Stage(99).String())
}

func TestUnitRefPath(t *testing.T) {
	assert.Equal(t, "./.github/actions/setup", unitRefPath("/repo", "/repo/.github/actions/setup/action.yml"))
	assert.Equal(t, "./", unitRefPath("/repo", "/repo/action.yml"))
}

func TestFileWriter(t *testing.T) {
	outDir := t.TempDir()
	f := codegen.GeneratedFile{Path: "units/setup_unit.go", Content: []byte("package units\n")}

	w := &fileWriter{outDir: outDir}
	dest, outcome, issue := w.write(f)
	require.Nil(t, issue)
	assert.Equal(t, outcomeWritten, outcome)
	assert.Equal(t, filepath.Join(outDir, "units", "setup_unit.go"), dest)

	_, outcome, issue = w.write(f)
	require.Nil(t, issue)
	assert.Equal(t, outcomeUnchanged, outcome)

	changed := f
	changed.Content = []byte("package units\n\nconst X = 1\n")
	_, outcome, issue = w.write(changed)
	require.NotNil(t, issue)
	assert.Equal(t, outcomeKept, outcome)
	assert.Equal(t, "pass --overwrite-existing to replace it", issue.Hint)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "package units\n", string(data))

	w.overwrite = true
	_, outcome, issue = w.write(changed)
	require.Nil(t, issue)
	assert.Equal(t, outcomeWritten, outcome)
}

func TestFileWriter_ConfirmError(t *testing.T) {
	outDir := t.TempDir()
	writeTestFile(t, outDir, "ci_workflow.go", "package gen\n")

	w := &fileWriter{outDir: outDir, confirm: func(string) (bool, error) { return false, assert.AnError }}
	_, outcome, issue := w.write(codegen.GeneratedFile{Path: "ci_workflow.go", Content: []byte("package other\n")})
	require.NotNil(t, issue)
	assert.Equal(t, outcomeKept, outcome)
	assert.Equal(t, types.SeverityError, issue.Severity)
	assert.Contains(t, issue.Message, "overwrite prompt failed")
}
