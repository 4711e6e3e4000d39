package workflow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/githubnext/gh-flowgen/pkg/constants"
	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/parser"
	"github.com/githubnext/gh-flowgen/pkg/types"
)

var resolverLog = logger.New("workflow:unit_resolver")

// ErrUnitNotFound is returned when a local reference has no definition file.
var ErrUnitNotFound = errors.New("local unit not found")

// Resolver resolves the uses: references of pipeline documents against the
// scan root and records local targets in the batch registry.
type Resolver struct {
	Root     string
	Registry *UnitRegistry
	// StrictSyntax loads definitions with the strict loader.
	StrictSyntax bool
	// SchemaCheck validates unit definitions against the unit schema.
	SchemaCheck bool
	// SkipUnitCheck silences warnings about missing local definitions.
	SkipUnitCheck bool
}

// NewResolver returns a resolver with every check enabled.
func NewResolver(root string, registry *UnitRegistry) *Resolver {
	return &Resolver{Root: root, Registry: registry, StrictSyntax: true, SchemaCheck: true}
}

// Resolution holds the descriptors referenced by one document.
type Resolution struct {
	Steps  map[*WorkflowStep]*LocalUnit
	Jobs   map[*Job]*LocalUnit
	Issues types.Issues
}

// Unit returns the descriptor a step resolved to, if any.
func (r *Resolution) Unit(step *WorkflowStep) (*LocalUnit, bool) {
	u, ok := r.Steps[step]
	return u, ok
}

// Call returns the descriptor a calling job resolved to, if any.
func (r *Resolution) Call(job *Job) (*LocalUnit, bool) {
	u, ok := r.Jobs[job]
	return u, ok
}

// ResolveDocument resolves every step and job reference of doc. All
// findings are warnings of kind reference; issues of newly loaded unit
// definitions are reported against the definition file.
func (r *Resolver) ResolveDocument(doc *Document) *Resolution {
	res := &Resolution{
		Steps: make(map[*WorkflowStep]*LocalUnit),
		Jobs:  make(map[*Job]*LocalUnit),
	}
	rc := &resolveContext{resolver: r, file: doc.Path, src: doc.Source, res: res}

	for _, job := range doc.Jobs {
		jobPath := []string{"jobs", job.ID}
		if job.IsCall() {
			rc.resolveCall(job, append(slices.Clone(jobPath), "uses"))
			continue
		}
		for i, step := range job.Steps {
			stepPath := append(slices.Clone(jobPath), "steps", strconv.Itoa(i))
			if u := rc.resolveStep(step, stepPath, nil); u != nil {
				res.Steps[step] = u
			}
		}
	}

	resolverLog.Printf("%s: %d unit(s), %d call(s), %d issue(s)", doc.Path, len(res.Steps), len(res.Jobs), len(res.Issues))
	return res
}

type resolveContext struct {
	resolver *Resolver
	file     string
	src      *parser.Document
	res      *Resolution
}

func (rc *resolveContext) warn(rule string, path []string, msg string) {
	dotted := parser.FormatInstancePath(path)
	issue := types.NewWarning(types.KindReference, rc.file, rule, dotted+": "+msg)
	issue.Path = dotted
	if rc.src != nil {
		if line, col, ok := parser.LocateInstancePath(rc.src, path); ok {
			issue = issue.At(line, col)
		}
	}
	rc.res.Issues = append(rc.res.Issues, issue)
}

// resolveStep resolves a step reference. stack holds the canonical paths of
// the composite units being resolved, to stop on cycles.
func (rc *resolveContext) resolveStep(step *WorkflowStep, path []string, stack []string) *LocalUnit {
	if !step.IsUsesStep() {
		return nil
	}
	usesPath := append(slices.Clone(path), "uses")
	ref := ParseUnitReference(step.Uses, StepLevel)
	switch ref.Kind {
	case RefInvalid:
		rc.warn("unit-reference", usesPath, fmt.Sprintf("invalid unit reference '%s': %s", step.Uses, ref.Reason))
		return nil
	case RefLocalUnit:
	default:
		return nil
	}

	definition, err := rc.resolver.findUnitDefinition(ref.LocalPath)
	if err != nil {
		if !rc.resolver.SkipUnitCheck {
			rc.warn("unit-not-found", usesPath, fmt.Sprintf("local unit not found: %s", step.Uses))
		}
		return nil
	}
	canonical := canonicalPath(definition)
	if slices.Contains(stack, canonical) {
		rc.warn("unit-cycle", usesPath, fmt.Sprintf("local unit cycle: %s", step.Uses))
		return nil
	}

	unit, first, err := rc.resolver.Registry.Resolve(canonical, func() (*LocalUnit, error) {
		return rc.resolver.loadUnit(definition, refPathOf(ref.LocalPath), append(slices.Clone(stack), canonical))
	})
	if err != nil {
		rc.warn("unit-load", usesPath, fmt.Sprintf("cannot load local unit %s: %v", step.Uses, err))
		return nil
	}
	rc.reportFirst(unit, first, usesPath)

	for _, problem := range checkUnitCall(unit, step) {
		rc.warn("unit-inputs", append(slices.Clone(path), "with"), problem)
	}
	return unit
}

func (rc *resolveContext) resolveCall(job *Job, usesPath []string) {
	ref := ParseUnitReference(job.Uses, JobLevel)
	switch ref.Kind {
	case RefInvalid:
		rc.warn("unit-reference", usesPath, fmt.Sprintf("invalid pipeline reference '%s': %s", job.Uses, ref.Reason))
		return
	case RefLocalCall:
	default:
		return
	}

	definition := filepath.Join(rc.resolver.Root, filepath.FromSlash(ref.LocalPath))
	if !fileExists(definition) {
		if !rc.resolver.SkipUnitCheck {
			rc.warn("unit-not-found", usesPath, fmt.Sprintf("local pipeline not found: %s", job.Uses))
		}
		return
	}

	unit, first, err := rc.resolver.Registry.Resolve(canonicalPath(definition), func() (*LocalUnit, error) {
		src, err := rc.resolver.load(definition)
		if err != nil {
			return nil, err
		}
		return ParseLocalCall(src, refPathOf(ref.LocalPath))
	})
	if err != nil {
		rc.warn("unit-load", usesPath, fmt.Sprintf("cannot load local pipeline %s: %v", job.Uses, err))
		return
	}
	rc.reportFirst(unit, first, usesPath)
	rc.res.Jobs[job] = unit

	jobPath := usesPath[:len(usesPath)-1]
	for _, problem := range unit.Contract.CheckCall(job) {
		rc.warn("call-contract", jobPath, problem)
	}
}

// reportFirst adds the definition issues and the collision warning of a
// descriptor the first time it is handed out in the batch.
func (rc *resolveContext) reportFirst(unit *LocalUnit, first bool, usesPath []string) {
	if !first {
		return
	}
	rc.res.Issues = append(rc.res.Issues, unit.Issues...)
	if unit.CollidesWith != "" {
		rc.warn("unit-identifier", usesPath, fmt.Sprintf("local unit identifier collision: %s resolves to the same Go name as %s, keeping a literal reference",
			unit.RefPath, unit.CollidesWith))
	}
}

func (r *Resolver) load(path string) (*parser.Document, error) {
	return parser.LoadFile(path, r.StrictSyntax)
}

// loadUnit loads a composite unit definition and resolves its own local
// references with the same registry.
func (r *Resolver) loadUnit(definition, refPath string, stack []string) (*LocalUnit, error) {
	src, err := r.load(definition)
	if err != nil {
		return nil, err
	}
	unit := ParseLocalUnit(src, refPath)

	if r.SchemaCheck {
		unit.Issues = append(unit.Issues, parser.ValidateUnitSchema(src)...)
	}
	_, exprIssues := AnalyzeUnitExpressions(src, unit.InputNames())
	unit.Issues = append(unit.Issues, exprIssues...)

	nested := &resolveContext{
		resolver: r,
		file:     src.Path,
		src:      src,
		res:      &Resolution{Steps: make(map[*WorkflowStep]*LocalUnit), Jobs: make(map[*Job]*LocalUnit)},
	}
	for i, step := range unit.Steps {
		if u := nested.resolveStep(step, []string{"runs", "steps", strconv.Itoa(i)}, stack); u != nil {
			nested.res.Steps[step] = u
		}
	}
	unit.StepUnits = nested.res.Steps
	unit.Issues = append(unit.Issues, nested.res.Issues...)

	resolverLog.Printf("Loaded unit %s: %d input(s), %d step(s)", refPath, len(unit.Inputs), len(unit.Steps))
	return unit, nil
}

// findUnitDefinition returns the definition file for a local unit path.
// The path may name the unit directory or the definition file itself.
func (r *Resolver) findUnitDefinition(localPath string) (string, error) {
	target := filepath.Join(r.Root, filepath.FromSlash(localPath))
	if parser.IsUnitDefinitionName(target) && fileExists(target) {
		return target, nil
	}
	for _, name := range constants.UnitDefinitionFiles {
		candidate := filepath.Join(target, name)
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnitNotFound, localPath)
}

// checkUnitCall compares the with: block of a step with the inputs the unit
// declares.
func checkUnitCall(unit *LocalUnit, step *WorkflowStep) []string {
	declared := make(map[string]InputSpec, len(unit.Inputs))
	for _, in := range unit.Inputs {
		declared[in.Name] = in
	}
	var problems []string
	passed := make(map[string]bool, len(step.With))
	for _, item := range step.With {
		name := item.Key.(string)
		passed[name] = true
		if _, ok := declared[name]; !ok {
			problems = append(problems, fmt.Sprintf("input '%s' is not declared by %s", name, unit.RefPath))
		}
	}
	for _, in := range unit.Inputs {
		if in.IsRequired() && !passed[in.Name] {
			problems = append(problems, fmt.Sprintf("required input '%s' of %s is missing", in.Name, unit.RefPath))
		}
	}
	return problems
}

// MarketplaceReferences returns the distinct marketplace references of doc
// in first-use order.
func MarketplaceReferences(doc *Document) []UnitReference {
	var refs []UnitReference
	seen := make(map[string]bool)
	for _, job := range doc.Jobs {
		for _, step := range job.Steps {
			if !step.IsUsesStep() || seen[step.Uses] {
				continue
			}
			seen[step.Uses] = true
			if ref := ParseUnitReference(step.Uses, StepLevel); ref.Kind == RefMarketplace {
				refs = append(refs, ref)
			}
		}
	}
	return refs
}

// DetectRoot walks up from start to the nearest directory that holds a .git
// or .github entry. When none is found the directory of start is returned.
func DetectRoot(start string) string {
	abs, err := filepath.Abs(start)
	if err != nil {
		return start
	}
	dir := abs
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		dir = filepath.Dir(abs)
	}
	fallback := dir

	for {
		for _, marker := range []string{".git", ".github"} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				resolverLog.Printf("Detected root %s from %s", dir, start)
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}
		dir = parent
	}
}

// canonicalPath resolves symlinks so two spellings of one file share a
// descriptor.
func canonicalPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		abs = p
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return filepath.Clean(abs)
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// refPathOf returns the "./dir" form used in generated code.
func refPathOf(localPath string) string {
	if localPath == "." {
		return "./"
	}
	return "./" + strings.TrimPrefix(localPath, "./")
}
