// Package codegen turns pipeline documents and local unit definitions into
// Go source that rebuilds them with the flow package.
//
// Every generated file is formatted with gofumpt and read back before it is
// returned: the reader interprets the generated functions, renders the
// documents they build and compares them with the input. A difference is
// reported as a GenerationError instead of writing code that does not
// round-trip.
package codegen

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"
	"mvdan.cc/gofumpt/format"

	"github.com/githubnext/gh-flowgen/pkg/constants"
	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/stringutil"
	"github.com/githubnext/gh-flowgen/pkg/workflow"
)

var generatorLog = logger.New("codegen:generator")

const flowPkg = "flow"

// FileKind identifies what a generated file holds.
type FileKind string

const (
	FilePipeline FileKind = "pipeline"
	FileUnit     FileKind = "unit"
	FileCall     FileKind = "call"
)

// GeneratedFile is one generated Go source file.
type GeneratedFile struct {
	Kind FileKind
	// Path is relative to the output directory, slash separated.
	Path string
	// Source is the input file, relative to the scan root.
	Source string
	// Ident is the exported function that rebuilds the input.
	Ident   string
	Content []byte
}

// GenerationError reports a document that could not be turned into Go
// source, or whose generated source does not rebuild it.
type GenerationError struct {
	Path    string
	Message string
	// Diff is the cmp.Diff between the input and the rebuilt document.
	Diff string
}

func (e *GenerationError) Error() string {
	if e.Diff != "" {
		return fmt.Sprintf("%s: %s:\n%s", e.Path, e.Message, e.Diff)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Options configures a Generator.
type Options struct {
	// Package is the package name of pipeline files.
	Package string
	// UnitsImportPath is the import path of the generated units package.
	// Without it, local units are referenced literally.
	UnitsImportPath string
	// ExtractUnits emits typed helpers for local units and calls.
	ExtractUnits bool
	// Root is the scan root source paths are reported relative to.
	Root string
	// ModulePath is passed to gofumpt.
	ModulePath string
}

// Generator emits the files of one batch. It keeps the identifiers and file
// names already handed out, so it must be used for a single batch and from
// one goroutine.
type Generator struct {
	opts   Options
	idents map[string]bool
	files  map[string]bool
}

// NewGenerator returns a generator for one batch.
func NewGenerator(opts Options) *Generator {
	if opts.Package == "" {
		opts.Package = constants.DefaultPackageName
	}
	return &Generator{
		opts:   opts,
		idents: make(map[string]bool),
		files:  make(map[string]bool),
	}
}

// typedUnits reports whether local units are referenced through the
// generated units package.
func (g *Generator) typedUnits() bool {
	return g.opts.ExtractUnits && g.opts.UnitsImportPath != ""
}

// claim reserves ident, adding a numeric suffix when it is taken.
func (g *Generator) claim(ident string) string {
	candidate := ident
	for n := 2; g.idents[candidate]; n++ {
		candidate = ident + strconv.Itoa(n)
	}
	g.idents[candidate] = true
	return candidate
}

// claimPipeline reserves an exported function name and a file name for a
// pipeline.
func (g *Generator) claimPipeline(base string) (ident, file string) {
	root := stringutil.ToPascalIdent(base)
	for n := 1; ; n++ {
		ident = root
		if n > 1 {
			ident += strconv.Itoa(n)
		}
		file = stringutil.ToSnakeName(ident) + constants.PipelineFileSuffix
		if !g.idents[ident] && !g.files[file] {
			break
		}
	}
	g.idents[ident] = true
	g.files[file] = true
	return ident, file
}

// relSource returns path relative to the scan root in slash form.
func (g *Generator) relSource(path string) string {
	if g.opts.Root == "" {
		return filepath.ToSlash(path)
	}
	roots := []string{g.opts.Root}
	if resolved, err := filepath.EvalSymlinks(g.opts.Root); err == nil {
		roots = append(roots, resolved)
	}
	for _, root := range roots {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(path)
}

// GeneratePipeline emits the file rebuilding doc. res holds the local
// units its steps and jobs resolved to; it may be nil.
func (g *Generator) GeneratePipeline(doc *workflow.Document, res *workflow.Resolution) (*GeneratedFile, error) {
	if doc.Source == nil {
		return nil, &GenerationError{Path: doc.Path, Message: "document has no source tree"}
	}
	if res == nil {
		res = &workflow.Resolution{}
	}
	source := g.relSource(doc.Path)
	base := stringutil.TrimYAMLExtension(filepath.Base(doc.Path))
	ident, file := g.claimPipeline(base)
	generatorLog.Printf("Generating %s as %s in %s", source, ident, file)

	e := &pipelineEmitter{gen: g, doc: doc, res: res, ident: ident, base: base, bindings: make(map[string]UnitBinding)}
	body, err := e.emit()
	if err != nil {
		return nil, &GenerationError{Path: doc.Path, Message: err.Error()}
	}

	var imports []string
	imports = append(imports, constants.FlowImportPath)
	if e.usesUnits {
		imports = append(imports, g.opts.UnitsImportPath)
	}
	content, err := g.format(doc.Path, g.opts.Package, source, imports, body)
	if err != nil {
		return nil, err
	}

	rebuilt, err := ReadWorkflowSource(content, ident, e.bindings)
	if err != nil {
		return nil, &GenerationError{Path: doc.Path, Message: "reading generated source: " + err.Error()}
	}
	if diff := cmp.Diff(workflow.CanonicalTree(doc.Source.Tree), workflow.CanonicalTree(rebuilt.Tree())); diff != "" {
		generatorLog.Printf("Round trip of %s differs", source)
		return nil, &GenerationError{Path: doc.Path, Message: "generated source does not rebuild the document (-source +generated)", Diff: diff}
	}

	return &GeneratedFile{Kind: FilePipeline, Path: file, Source: source, Ident: ident, Content: content}, nil
}

// GenerateUnit emits the units package file of a descriptor: a composite
// or other local unit, or the contract of a reusable pipeline.
func (g *Generator) GenerateUnit(u *workflow.LocalUnit) (*GeneratedFile, error) {
	if !u.Emitted() {
		return nil, &GenerationError{Path: u.CanonicalPath, Message: "unit has no Go identifier"}
	}
	source := g.relSource(u.CanonicalPath)
	e := &unitEmitter{gen: g, unit: u}

	var (
		body  string
		err   error
		kind  FileKind
		file  string
		ident string
	)
	if u.Kind == workflow.UnitCall {
		kind, ident = FileCall, u.Ident+"Contract"
		file = "units/" + stringutil.ToSnakeName(u.Ident) + constants.CallFileSuffix
		body, err = e.emitCall(source)
	} else {
		kind, ident = FileUnit, u.Ident+"Unit"
		file = "units/" + stringutil.ToSnakeName(u.Ident) + constants.UnitFileSuffix
		body, err = e.emitUnit(source)
	}
	if err != nil {
		return nil, &GenerationError{Path: u.CanonicalPath, Message: err.Error()}
	}
	generatorLog.Printf("Generating unit %s as %s in %s", source, u.Ident, file)

	content, err := g.format(u.CanonicalPath, constants.UnitsPackageName, source, []string{constants.FlowImportPath}, body)
	if err != nil {
		return nil, err
	}
	if err := e.check(content); err != nil {
		return nil, err
	}
	return &GeneratedFile{Kind: kind, Path: file, Source: source, Ident: ident, Content: content}, nil
}

// format assembles a file from its body and runs gofumpt over it.
func (g *Generator) format(path, pkg, source string, imports []string, body string) ([]byte, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "// Code generated by %s from %s. DO NOT EDIT.\n\n", constants.CLIExtensionPrefix, source)
	fmt.Fprintf(&sb, "package %s\n\n", pkg)
	sb.WriteString("import (\n")
	for _, imp := range imports {
		sb.WriteString(strconv.Quote(imp) + "\n")
	}
	sb.WriteString(")\n\n")
	sb.WriteString(body)

	out, err := format.Source([]byte(sb.String()), format.Options{ModulePath: g.opts.ModulePath})
	if err != nil {
		generatorLog.Printf("gofumpt rejected generated source for %s: %v", path, err)
		return nil, &GenerationError{Path: path, Message: "formatting generated source: " + err.Error()}
	}
	return out, nil
}

// fieldNames maps declared names to exported struct field names, unique
// within the struct and distinct from reserved.
func fieldNames(names []string, reserved ...string) []string {
	taken := make(map[string]bool, len(names)+len(reserved))
	for _, r := range reserved {
		taken[r] = true
	}
	out := make([]string, len(names))
	for i, name := range names {
		root := stringutil.ToPascalIdent(name)
		field := root
		for n := 2; taken[field]; n++ {
			field = root + strconv.Itoa(n)
		}
		taken[field] = true
		out[i] = field
	}
	return out
}
