package cli

import (
	"context"
	"errors"
	"fmt"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sourcegraph/conc/iter"

	"github.com/githubnext/gh-flowgen/pkg/advisory"
	"github.com/githubnext/gh-flowgen/pkg/codegen"
	"github.com/githubnext/gh-flowgen/pkg/console"
	"github.com/githubnext/gh-flowgen/pkg/constants"
	"github.com/githubnext/gh-flowgen/pkg/envutil"
	"github.com/githubnext/gh-flowgen/pkg/fileutil"
	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/parser"
	"github.com/githubnext/gh-flowgen/pkg/types"
	"github.com/githubnext/gh-flowgen/pkg/workflow"
)

var importLog = logger.New("cli:import_orchestrator")

// ImportResult is the outcome of one batch.
type ImportResult struct {
	Root   string
	OutDir string

	Pipelines []codegen.GeneratedFile
	Units     []codegen.GeneratedFile
	Types     []codegen.GeneratedFile
	// Written lists the files created or replaced on disk.
	Written []string

	Issues types.Issues
	Report *Report
	// Stages holds the last stage each input reached before reporting.
	Stages map[string]Stage
	// Sources holds the raw content of every input that could be read.
	Sources map[string][]byte
}

// RunImport validates the pipelines and units found under config.Paths and,
// unless validation only was requested, generates Go source for them.
//
// The returned error reports a failed batch; the result is still returned
// so callers can inspect the report.
func RunImport(ctx context.Context, config ImportConfig) (*ImportResult, error) {
	if config.Stdout == nil {
		config.Stdout = os.Stdout
	}
	if config.Stderr == nil {
		config.Stderr = os.Stderr
	}
	if err := validateImportConfig(config); err != nil {
		return nil, err
	}
	if config.Jobs == 0 {
		config.Jobs = envutil.GetIntFromEnv(constants.MaxConcurrencyEnvVar, constants.DefaultMaxConcurrency, 1, 256, importLog)
	}
	if config.LookupTimeout == 0 {
		seconds := envutil.GetIntFromEnv(constants.LookupTimeoutEnvVar, int(constants.DefaultLookupTimeout.Seconds()), 1, 600, importLog)
		config.LookupTimeout = time.Duration(seconds) * time.Second
	}

	result := &ImportResult{
		Stages:  make(map[string]Stage),
		Sources: make(map[string][]byte),
	}
	result.Root, result.OutDir = resolveLayout(config)
	importLog.Printf("Import: root=%s, outDir=%s, jobs=%d", result.Root, result.OutDir, config.Jobs)

	files, issues := discoverInputs(config.Paths, result.OutDir)
	if len(files) == 0 && len(issues) == 0 {
		fmt.Fprintln(config.Stderr, console.FormatWarningMessage("No pipeline files found in "+strings.Join(config.Paths, ", ")))
	}

	checker := config.Checker
	if checker == nil && !config.SkipUnitCheck {
		gh, err := advisory.NewGitHubChecker()
		if err != nil {
			// lookups need credentials; without them the stage is skipped
			fmt.Fprintln(config.Stderr, console.FormatWarningMessage("Advisory lookups disabled: "+err.Error()))
		} else {
			checker = gh
		}
	}
	if checker != nil {
		checker = advisory.NewCachingChecker(checker)
	}

	// Phase 1: per-file checks that share no state run in parallel.
	runner := &stageRunner{config: config, root: result.Root, checker: checker}
	states := iter.Mapper[inputFile, *fileState]{MaxGoroutines: config.Jobs}.Map(files, func(in *inputFile) *fileState {
		return runner.run(ctx, *in)
	})

	// Phase 2: resolution and generation share the unit registry and the
	// generator, so they run in input order.
	modulePath, unitsImport := unitsImportPath(config, result.OutDir)
	registry := workflow.NewUnitRegistry()
	resolver := workflow.NewResolver(result.Root, registry)
	resolver.StrictSyntax = !config.SkipSyntaxCheck
	resolver.SchemaCheck = !config.SkipSchemaCheck
	resolver.SkipUnitCheck = config.SkipUnitCheck
	gen := codegen.NewGenerator(codegen.Options{
		Package:         packageName(config, result.OutDir),
		UnitsImportPath: unitsImport,
		ExtractUnits:    config.ExtractLocalUnits,
		Root:            result.Root,
		ModulePath:      modulePath,
	})

	for _, st := range states {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if st.source != nil {
			result.Sources[st.input.path] = st.source
		}
		if !st.failed && st.input.kind == parser.FileKindPipeline {
			generatePipeline(config, st, resolver, gen, result)
		}
		issues = append(issues, st.issues...)
		result.Stages[st.input.path] = st.stage
	}

	if config.ExtractLocalUnits && !config.ValidateOnly {
		for _, u := range registry.Units() {
			if !u.Emitted() {
				continue
			}
			f, err := gen.GenerateUnit(u)
			if err != nil {
				issues = append(issues, generationIssue(u.CanonicalPath, err))
				continue
			}
			result.Units = append(result.Units, *f)
		}
	}

	if config.GenerateTypes && !config.ValidateOnly {
		issues = append(issues, runTypeGenerator(ctx, config, states, result)...)
	}

	switch {
	case config.ValidateOnly:
	case config.Preview:
		printPreview(config, result)
	default:
		issues = append(issues, writeGenerated(config, result)...)
	}

	result.Issues = dedupeIssues(issues)
	result.Report = NewReport(result.Root, result.Issues)

	if config.ValidationReport != "" {
		if err := writeReport(result.Report, config.ValidationReport, config.Stdout); err != nil {
			return result, err
		}
	}
	if !config.JSONOutput {
		printIssues(config.Stderr, result.Root, result.Issues, result.Sources)
		printSummary(config, result, len(files))
	} else if config.ValidationReport != "-" {
		if err := result.Report.WriteJSON(config.Stdout); err != nil {
			return result, err
		}
	}

	return result, batchError(config, result.Issues)
}

// generatePipeline resolves a pipeline that passed the parallel stages and
// turns it into Go source.
func generatePipeline(config ImportConfig, st *fileState, resolver *workflow.Resolver, gen *codegen.Generator, result *ImportResult) {
	res := resolver.ResolveDocument(st.doc)
	st.add(res.Issues...)
	_, exprIssues := workflow.AnalyzeExpressions(st.doc)
	st.add(exprIssues...)
	st.stage = StageResolved

	if config.ValidateOnly {
		return
	}
	f, err := gen.GeneratePipeline(st.doc, res)
	if err != nil {
		st.fail(generationIssue(st.input.path, err))
		return
	}
	result.Pipelines = append(result.Pipelines, *f)
	st.stage = StageGenerated
}

func generationIssue(path string, err error) types.ValidationIssue {
	msg := err.Error()
	var genErr *codegen.GenerationError
	if errors.As(err, &genErr) {
		msg = genErr.Message
		if genErr.Diff != "" {
			msg += ":\n" + genErr.Diff
		}
	}
	return types.NewError(types.KindGeneration, path, "", msg)
}

// runTypeGenerator hands the distinct marketplace references of the batch
// to the configured type generator.
func runTypeGenerator(ctx context.Context, config ImportConfig, states []*fileState, result *ImportResult) types.Issues {
	if config.TypeGenerator == nil {
		fmt.Fprintln(config.Stderr, console.FormatInfoMessage("No type generator is configured; skipping marketplace unit types"))
		return nil
	}
	seen := make(map[string]bool)
	var refs []workflow.UnitReference
	for _, st := range states {
		if st.doc == nil || st.failed {
			continue
		}
		for _, ref := range workflow.MarketplaceReferences(st.doc) {
			if key := strings.ToLower(ref.Raw); !seen[key] {
				seen[key] = true
				refs = append(refs, ref)
			}
		}
	}
	if len(refs) == 0 {
		return nil
	}
	files, err := config.TypeGenerator.GenerateTypes(ctx, refs, result.OutDir)
	if err != nil {
		// The generator is an outside collaborator, so its failure is not critical.
		return types.Issues{types.NewError(types.KindReference, "", "type-generator", "type generation failed: "+err.Error())}
	}
	result.Types = files
	return nil
}

func writeGenerated(config ImportConfig, result *ImportResult) types.Issues {
	w := &fileWriter{outDir: result.OutDir, overwrite: config.OverwriteExisting, confirm: config.ConfirmOverwrite}
	var issues types.Issues
	for _, group := range [][]codegen.GeneratedFile{result.Pipelines, result.Units, result.Types} {
		for _, f := range group {
			dest, outcome, issue := w.write(f)
			if issue != nil {
				issues = append(issues, *issue)
			}
			if outcome == outcomeWritten {
				result.Written = append(result.Written, dest)
			}
		}
	}
	importLog.Printf("Wrote %d file(s)", len(result.Written))
	return issues
}

func printPreview(config ImportConfig, result *ImportResult) {
	for _, group := range [][]codegen.GeneratedFile{result.Pipelines, result.Units, result.Types} {
		for _, f := range group {
			fmt.Fprintf(config.Stdout, "// ==> %s <==\n", filepath.ToSlash(filepath.Join(displayPath(result.Root, result.OutDir), f.Path)))
			fmt.Fprintln(config.Stdout, string(f.Content))
		}
	}
}

// batchError applies the failure policy. Critical errors always fail the
// batch, validation only fails on any error and strict mode fails on
// warnings. Strict mode alone never turns a non-critical error into a failure.
func batchError(config ImportConfig, issues types.Issues) error {
	errs, warns := issues.Errors(), issues.Warnings()
	switch {
	case issues.HasCritical():
		return fmt.Errorf("import failed: %d error(s) found", len(errs))
	case config.Strict && len(warns) > 0 && len(errs) > 0:
		return fmt.Errorf("strict mode: %d error(s) and %d warning(s) found", len(errs), len(warns))
	case config.Strict && len(warns) > 0:
		return fmt.Errorf("strict mode: %d warning(s) found", len(warns))
	case config.ValidateOnly && len(errs) > 0:
		return fmt.Errorf("validation failed: %d error(s) found", len(errs))
	}
	return nil
}

// resolveLayout returns the scan root and output directory of a batch.
func resolveLayout(config ImportConfig) (root, outDir string) {
	root = config.Root
	if root == "" {
		root = workflow.DetectRoot(config.Paths[0])
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	outDir = config.OutDir
	if outDir == "" {
		outDir = filepath.Join(root, constants.DefaultOutputDir)
	}
	if abs, err := filepath.Abs(outDir); err == nil {
		outDir = abs
	}
	return root, outDir
}

// unitsImportPath finds the module holding outDir. Without one, local units
// stay literal unless the import path was given explicitly.
func unitsImportPath(config ImportConfig, outDir string) (modulePath, importPath string) {
	mod, err := codegen.FindModule(outDir)
	if err == nil {
		modulePath = mod.Path
	}
	if !config.ExtractLocalUnits {
		return modulePath, ""
	}
	if config.UnitsImportPath != "" {
		return modulePath, config.UnitsImportPath
	}
	if err != nil {
		if errors.Is(err, codegen.ErrNoModule) {
			fmt.Fprintln(config.Stderr, console.FormatInfoMessage("No go.mod encloses "+outDir+"; local units are referenced literally. Pass --units-import-path to use typed helpers"))
		} else {
			fmt.Fprintln(config.Stderr, console.FormatWarningMessage(err.Error()))
		}
		return modulePath, ""
	}
	importPath, err = mod.UnitsImportPath(outDir)
	if err != nil {
		fmt.Fprintln(config.Stderr, console.FormatWarningMessage(err.Error()))
		return modulePath, ""
	}
	return modulePath, importPath
}

// packageName defaults the generated package to the output directory name
// when that is a valid identifier.
func packageName(config ImportConfig, outDir string) string {
	if config.Package != "" {
		return config.Package
	}
	base := filepath.Base(outDir)
	if token.IsIdentifier(base) && !token.IsKeyword(base) && strings.ToLower(base) == base {
		return base
	}
	return constants.DefaultPackageName
}

// dedupeIssues drops repeated findings. Unit definitions shared by several
// pipelines report their issues once.
func dedupeIssues(issues types.Issues) types.Issues {
	seen := make(map[string]bool, len(issues))
	out := make(types.Issues, 0, len(issues))
	for _, issue := range issues {
		key := fmt.Sprintf("%s|%s|%s|%d|%d|%s|%s", issue.Kind, issue.Severity, canonicalFile(issue.File), issue.Line, issue.Column, issue.Rule, issue.Message)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, issue)
	}
	return out
}

func canonicalFile(path string) string {
	if path == "" {
		return ""
	}
	if canonical, err := fileutil.CanonicalPath(path); err == nil {
		return canonical
	}
	return path
}
