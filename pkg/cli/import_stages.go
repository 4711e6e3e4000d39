package cli

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"

	"github.com/githubnext/gh-flowgen/pkg/advisory"
	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/parser"
	"github.com/githubnext/gh-flowgen/pkg/types"
	"github.com/githubnext/gh-flowgen/pkg/workflow"
)

var importStagesLog = logger.New("cli:import_stages")

// Stage is the position of a file in the import state machine. Stages run
// in this order; a skipped stage is passed through without running.
type Stage int

const (
	StageIdle Stage = iota
	StageLoaded
	StageSyntaxChecked
	StageSchemaChecked
	StageSecurityChecked
	StageVulnerabilityChecked
	StageResolved
	StageGenerated
	StageReported
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageLoaded:
		return "loaded"
	case StageSyntaxChecked:
		return "syntax-checked"
	case StageSchemaChecked:
		return "schema-checked"
	case StageSecurityChecked:
		return "security-checked"
	case StageVulnerabilityChecked:
		return "vulnerability-checked"
	case StageResolved:
		return "resolved"
	case StageGenerated:
		return "generated"
	case StageReported:
		return "reported"
	default:
		return "unknown"
	}
}

// fileState carries one file through the stages.
type fileState struct {
	input  inputFile
	stage  Stage
	source []byte
	src    *parser.Document
	doc    *workflow.Document
	issues types.Issues
	// failed is set by a critical error; the file produces no output.
	failed bool
}

func (st *fileState) add(issues ...types.ValidationIssue) {
	st.issues = append(st.issues, issues...)
}

func (st *fileState) fail(issue types.ValidationIssue) {
	st.add(issue)
	st.failed = true
	importStagesLog.Printf("%s failed at %s: %s", st.input.path, st.stage, issue.Message)
}

// stageRunner runs the per-file stages that do not touch shared state:
// everything up to and including the vulnerability check.
type stageRunner struct {
	config  ImportConfig
	root    string
	checker advisory.Checker
}

func (r *stageRunner) run(ctx context.Context, in inputFile) *fileState {
	st := &fileState{input: in}

	source, err := os.ReadFile(in.path)
	if err != nil {
		st.fail(types.NewError(types.KindIO, in.path, "", "cannot read input: "+ioReason(err)))
		return st
	}
	st.source = source
	st.stage = StageLoaded

	if !r.load(st) {
		return st
	}
	st.stage = StageSyntaxChecked

	if in.kind == parser.FileKindUnit {
		r.checkUnit(st)
		return st
	}

	st.doc = workflow.ParseDocument(st.src)
	if !r.config.SkipSchemaCheck {
		st.add(parser.ValidatePipelineSchema(st.src)...)
		st.add(workflow.DetectNeedsCycles(st.doc)...)
	}
	st.stage = StageSchemaChecked

	if !r.config.SkipSecurityCheck {
		st.add(workflow.ScanSecurity(st.doc)...)
	}
	st.stage = StageSecurityChecked

	if !r.config.SkipUnitCheck && r.checker != nil {
		st.add(advisory.Check(ctx, r.checker, st.doc, r.config.LookupTimeout)...)
	}
	st.stage = StageVulnerabilityChecked
	return st
}

// load parses the source strictly, or best-effort when the syntax check is
// skipped. A parse failure is critical for the file.
func (r *stageRunner) load(st *fileState) bool {
	var (
		src *parser.Document
		err error
	)
	if r.config.SkipSyntaxCheck {
		src, err = parser.LoadDocumentBestEffort(st.source, st.input.path)
	} else {
		src, err = parser.LoadDocument(st.source, st.input.path)
	}
	if err != nil {
		issue := types.NewError(types.KindSyntax, st.input.path, "", err.Error())
		var syntaxErr *parser.SyntaxError
		if errors.As(err, &syntaxErr) {
			issue.Message = syntaxErr.Message
			issue = issue.At(syntaxErr.Line, syntaxErr.Column)
		}
		st.fail(issue)
		return false
	}
	st.src = src
	return true
}

// checkUnit validates a unit definition found by the scan. Units are
// generated when a pipeline references them; here they are only checked.
func (r *stageRunner) checkUnit(st *fileState) {
	if !r.config.SkipSchemaCheck {
		st.add(parser.ValidateUnitSchema(st.src)...)
	}
	// units have no security or advisory stage of their own
	st.stage = StageVulnerabilityChecked

	unit := workflow.ParseLocalUnit(st.src, unitRefPath(r.root, st.input.path))
	_, issues := workflow.AnalyzeUnitExpressions(st.src, unit.InputNames())
	st.add(issues...)
	st.stage = StageResolved
}

// unitRefPath returns the "./dir" reference that names the unit defined
// in file.
func unitRefPath(root, file string) string {
	rel, err := filepath.Rel(root, filepath.Dir(file))
	if err != nil {
		return "./" + filepath.ToSlash(filepath.Dir(file))
	}
	if rel == "." {
		return "./"
	}
	return "./" + path.Clean(filepath.ToSlash(rel))
}
