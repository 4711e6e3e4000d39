package parser

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/types"
)

var schemaValidationLog = logger.New("parser:schema_validation")

// This file validates loaded documents against the embedded JSON schemas.
//
// The schemas are intentionally permissive: they only encode the structural
// rules every runner relies on (at least one trigger, at least one job, a
// runner or reusable call target per job, a name and runs.using per unit) and
// never set additionalProperties to false, so documents written for newer
// runner features still validate.
//
// Every violation becomes exactly one ValidationIssue. Errors of anyOf/oneOf
// keywords are reported once for the combinator instead of once per branch.

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	pipelineSchemaFile = "pipeline_schema.json"
	unitSchemaFile     = "unit_schema.json"

	// must match the $id of the embedded schemas
	schemaBaseURL = "https://github.com/githubnext/gh-flowgen/schemas/"
)

// SchemaKind selects which embedded schema a document is checked against.
type SchemaKind int

const (
	PipelineSchema SchemaKind = iota
	UnitSchema
)

var (
	compileOnce     sync.Once
	compiledSchemas map[SchemaKind]*jsonschema.Schema
	compileErr      error

	printer = message.NewPrinter(language.English)
)

func compiledSchema(k SchemaKind) (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiledSchemas, compileErr = compileSchemas()
	})
	if compileErr != nil {
		return nil, compileErr
	}
	return compiledSchemas[k], nil
}

func compileSchemas() (map[SchemaKind]*jsonschema.Schema, error) {
	schemaValidationLog.Print("Compiling embedded schemas")
	compiler := jsonschema.NewCompiler()
	files := map[SchemaKind]string{PipelineSchema: pipelineSchemaFile, UnitSchema: unitSchemaFile}

	out := make(map[SchemaKind]*jsonschema.Schema, len(files))
	for k, name := range files {
		raw, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded schema %s: %w", name, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to parse embedded schema %s: %w", name, err)
		}
		url := schemaBaseURL + name
		if err := compiler.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("failed to add schema resource %s: %w", name, err)
		}
		sch, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		out[k] = sch
	}
	return out, nil
}

// ValidatePipelineSchema checks a pipeline document and applies the rules a
// schema cannot express (cron syntax, needs targets).
func ValidatePipelineSchema(doc *Document) types.Issues {
	issues := validateWithSchema(doc, PipelineSchema)
	return append(issues, validatePipelineRules(doc)...)
}

// ValidateUnitSchema checks a local unit definition.
func ValidateUnitSchema(doc *Document) types.Issues {
	issues := validateWithSchema(doc, UnitSchema)
	return append(issues, validateUnitRules(doc)...)
}

func validateWithSchema(doc *Document, k SchemaKind) types.Issues {
	sch, err := compiledSchema(k)
	if err != nil {
		// embedded schemas are part of the binary; failing to compile them is a defect
		return types.Issues{types.NewError(types.KindGeneration, doc.Path, "schema-internal", err.Error())}
	}

	instance, err := toJSONInstance(doc.Tree)
	if err != nil {
		return types.Issues{types.NewError(types.KindSchema, doc.Path, "schema-instance", err.Error())}
	}

	err = sch.Validate(instance)
	if err == nil {
		schemaValidationLog.Printf("%s passed schema validation", doc.Path)
		return nil
	}

	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		return types.Issues{types.NewError(types.KindSchema, doc.Path, "schema-instance", err.Error())}
	}

	var leaves []*jsonschema.ValidationError
	collectViolations(validationErr, &leaves)
	schemaValidationLog.Printf("%s has %d schema violation(s)", doc.Path, len(leaves))

	var issues types.Issues
	seen := make(map[string]bool)
	for _, leaf := range leaves {
		for _, issue := range issuesFor(doc, k, leaf) {
			key := issue.Path + "\x00" + issue.Rule + "\x00" + issue.Message
			if seen[key] {
				continue
			}
			seen[key] = true
			issues = append(issues, issue)
		}
	}
	return issues
}

// collectViolations flattens the error tree. Combinators are leaves so each
// failing anyOf/oneOf yields a single issue.
func collectViolations(err *jsonschema.ValidationError, out *[]*jsonschema.ValidationError) {
	switch err.ErrorKind.(type) {
	case *kind.AnyOf, *kind.OneOf, *kind.PropertyNames:
		*out = append(*out, err)
		return
	}
	if len(err.Causes) == 0 {
		*out = append(*out, err)
		return
	}
	for _, cause := range err.Causes {
		collectViolations(cause, out)
	}
}

func issuesFor(doc *Document, k SchemaKind, err *jsonschema.ValidationError) types.Issues {
	loc := err.InstanceLocation

	// one issue per missing property so that each gets its own rule
	if req, ok := err.ErrorKind.(*kind.Required); ok && len(req.Missing) > 1 {
		var issues types.Issues
		for _, missing := range req.Missing {
			single := &jsonschema.ValidationError{
				InstanceLocation: loc,
				ErrorKind:        &kind.Required{Missing: []string{missing}},
			}
			issues = append(issues, issuesFor(doc, k, single)...)
		}
		return issues
	}

	rule := ruleFor(k, loc, err.ErrorKind)
	msg := messageFor(doc, loc, err)
	path := FormatInstancePath(loc)
	if path != "" {
		msg = path + ": " + msg
	}

	issue := types.NewError(types.KindSchema, doc.Path, rule, msg)
	issue.Path = path
	if line, col, ok := LocateInstancePath(doc, loc); ok {
		issue = issue.At(line, col)
	}
	return types.Issues{issue}
}

// ruleFor derives the stable rule identifier of a violation from where it
// happened and which keyword failed.
func ruleFor(k SchemaKind, loc []string, ek jsonschema.ErrorKind) string {
	if req, ok := ek.(*kind.Required); ok && len(req.Missing) == 1 {
		missing := req.Missing[0]
		switch {
		case k == PipelineSchema && len(loc) == 0 && missing == "on":
			return "workflow-triggers"
		case k == PipelineSchema && len(loc) == 0 && missing == "jobs":
			return "workflow-jobs"
		case k == UnitSchema && len(loc) == 0 && missing == "name":
			return "unit-name"
		case k == UnitSchema && (len(loc) == 0 && missing == "runs" || len(loc) == 1 && loc[0] == "runs"):
			return "unit-runs"
		}
	}

	if _, ok := ek.(*kind.PropertyNames); ok {
		return "job-id"
	}

	if k == UnitSchema {
		switch {
		case len(loc) >= 1 && loc[0] == "name":
			return "unit-name"
		case len(loc) == 2 && loc[0] == "runs" && loc[1] == "using":
			return "unit-runs"
		case len(loc) == 4 && loc[0] == "runs" && loc[1] == "steps" && isCombinator(ek):
			return "step-action"
		}
		return genericRule(ek)
	}

	switch {
	case len(loc) >= 1 && loc[0] == "on":
		return "workflow-triggers"
	case len(loc) >= 1 && loc[0] == "permissions":
		return "workflow-permissions"
	case len(loc) == 1 && loc[0] == "jobs":
		return "workflow-jobs"
	case len(loc) == 2 && loc[0] == "jobs" && isCombinator(ek):
		return "job-runner"
	case len(loc) == 4 && loc[0] == "jobs" && loc[2] == "steps" && isCombinator(ek):
		return "step-action"
	case len(loc) >= 3 && loc[0] == "jobs" && loc[2] == "permissions":
		return "workflow-permissions"
	}
	return genericRule(ek)
}

func isCombinator(ek jsonschema.ErrorKind) bool {
	switch ek.(type) {
	case *kind.AnyOf, *kind.OneOf:
		return true
	}
	return false
}

func genericRule(ek jsonschema.ErrorKind) string {
	kw := ek.KeywordPath()
	if len(kw) == 0 {
		return "schema"
	}
	return "schema-" + strings.ToLower(kw[0])
}

func messageFor(doc *Document, loc []string, err *jsonschema.ValidationError) string {
	value, _ := valueAt(doc.Tree, loc)

	switch ek := err.ErrorKind.(type) {
	case *kind.AnyOf:
		if len(loc) == 2 && loc[0] == "jobs" {
			return fmt.Sprintf("job '%s' must declare 'runs-on' or 'uses'", loc[1])
		}
	case *kind.OneOf:
		switch {
		case len(loc) == 1 && loc[0] == "on":
			if isEmptyValue(value) {
				return "at least one trigger is required"
			}
			return "triggers must be an event name, a list of event names or a mapping of events"
		case len(loc) >= 1 && isStepLocation(loc):
			if len(ek.Subschemas) > 1 {
				return "step cannot declare both 'run' and 'uses'"
			}
			return "step must declare 'run' or 'uses'"
		case len(loc) >= 1 && loc[len(loc)-1] == "permissions":
			return "permissions must be 'read-all', 'write-all' or a mapping of scopes to 'read', 'write' or 'none'"
		}
	case *kind.MinProperties:
		if len(loc) == 1 && loc[0] == "jobs" {
			return "at least one job is required"
		}
	case *kind.PropertyNames:
		return fmt.Sprintf("invalid job id '%s': must start with a letter or '_' and contain only alphanumerics, '-' or '_'", ek.Property)
	}

	msg := err.ErrorKind.LocalizedString(printer)
	// combinators carry their detail in the causes
	if isCombinator(err.ErrorKind) && len(err.Causes) > 0 {
		var parts []string
		for _, cause := range err.Causes {
			parts = append(parts, cause.ErrorKind.LocalizedString(printer))
		}
		msg = strings.Join(parts, " or ")
	}
	return msg
}

func isStepLocation(loc []string) bool {
	n := len(loc)
	return n >= 2 && loc[n-2] == "steps"
}

func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	default:
		if m, ok := asMapSlice(v); ok {
			return len(m) == 0
		}
	}
	return false
}

// FormatInstancePath renders a schema instance location as a dotted path:
// ["jobs", "build", "steps", "0"] becomes "jobs.build.steps[0]". The root is
// the empty string.
func FormatInstancePath(loc []string) string {
	var sb strings.Builder
	for _, seg := range loc {
		if isIndex(seg) {
			sb.WriteString("[" + seg + "]")
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(".")
		}
		sb.WriteString(seg)
	}
	return sb.String()
}

func isIndex(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// toJSONInstance converts the ordered tree into the plain JSON value shapes
// the schema engine expects by round-tripping through encoding/json.
func toJSONInstance(tree any) (any, error) {
	raw, err := json.Marshal(toPlain(tree))
	if err != nil {
		return nil, fmt.Errorf("document cannot be represented as JSON: %w", err)
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw))
}
