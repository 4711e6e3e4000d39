// This file analyzes the ${{ ... }} spans of a pipeline or unit document.
//
// Every string scalar is lexed, not only values that consist of a single
// expression. Each span is classified and cross-checked against what the
// document declares:
//
//   - matrix.<key> must be a dimension or include key of the owning job
//   - steps.<id> must be declared by an earlier step of the same job
//     (job outputs see every step)
//   - needs.<id> must be listed in the job's needs
//   - inputs.<name> must be declared when the document declares inputs
//
// Failed checks are warnings. Spans rooted in an unknown context are never
// reported as issues; their outcome is informational so that features the
// classifier does not model yet still translate.

package workflow

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/parser"
	"github.com/githubnext/gh-flowgen/pkg/types"
)

var expressionValidationLog = logger.New("workflow:expression_validation")

// maxSuggestionDistance bounds the edit distance of "did you mean" hints.
const maxSuggestionDistance = 3

// SpanOutcome is the result of checking one span.
type SpanOutcome string

const (
	OutcomeValid   SpanOutcome = "valid"
	OutcomeWarning SpanOutcome = "warning"
	OutcomeInfo    SpanOutcome = "info"
)

// ExpressionSpan is one expression found in a document.
type ExpressionSpan struct {
	// Inner is the text between the delimiters, verbatim. For bare if
	// conditions it is the whole value.
	Inner string
	// Path is the dotted location of the string holding the span.
	Path    string
	Class   ExpressionClass
	Refs    []ContextRef
	Outcome SpanOutcome
	Reason  string
}

// exprScope describes what a span at some location may reference.
type exprScope struct {
	inJob         bool
	needs         []string
	matrixKeys    []string
	matrixDynamic bool
	// stepIDs is nil where no steps are visible.
	stepIDs []string
}

type expressionAnalyzer struct {
	file   string
	src    *parser.Document
	inputs []string
	// checkInputs is false when the document declares no inputs at all.
	checkInputs bool

	spans  []ExpressionSpan
	issues types.Issues
	seen   map[string]bool
}

// AnalyzeExpressions lexes, classifies and checks every span of doc.
func AnalyzeExpressions(doc *Document) ([]ExpressionSpan, types.Issues) {
	inputs, declared := declaredInputs(doc)
	a := &expressionAnalyzer{
		file:        doc.Path,
		src:         doc.Source,
		inputs:      inputs,
		checkInputs: declared,
		seen:        make(map[string]bool),
	}

	for _, item := range doc.Source.Tree {
		key := item.Key.(string)
		jobs, ok := item.Value.(yaml.MapSlice)
		if key != "jobs" || !ok {
			a.walk(item.Value, []string{key}, exprScope{})
			continue
		}
		for _, jobItem := range jobs {
			id := jobItem.Key.(string)
			raw, ok := jobItem.Value.(yaml.MapSlice)
			if !ok {
				a.walk(jobItem.Value, []string{"jobs", id}, exprScope{})
				continue
			}
			a.walkJob(parseJob(id, raw), raw, []string{"jobs", id})
		}
	}

	expressionValidationLog.Printf("%s: %d span(s), %d warning(s)", doc.Path, len(a.spans), len(a.issues))
	return a.spans, a.issues
}

// AnalyzeUnitExpressions checks the spans of a unit definition. inputs are
// the names the unit declares.
func AnalyzeUnitExpressions(src *parser.Document, inputs []string) ([]ExpressionSpan, types.Issues) {
	a := &expressionAnalyzer{
		file:        src.Path,
		src:         src,
		inputs:      inputs,
		checkInputs: true,
		seen:        make(map[string]bool),
	}
	for _, item := range src.Tree {
		key := item.Key.(string)
		runs, ok := item.Value.(yaml.MapSlice)
		if key != "runs" || !ok {
			a.walk(item.Value, []string{key}, exprScope{})
			continue
		}
		for _, field := range runs {
			fkey := field.Key.(string)
			path := []string{"runs", fkey}
			if steps, ok := field.Value.([]any); ok && fkey == "steps" {
				a.walkSteps(steps, path, exprScope{})
				continue
			}
			a.walk(field.Value, path, exprScope{})
		}
	}
	return a.spans, a.issues
}

func (a *expressionAnalyzer) walkJob(job *Job, raw yaml.MapSlice, path []string) {
	keys, dynamic := job.Strategy.MatrixKeys()
	base := exprScope{inJob: true, needs: job.Needs, matrixKeys: keys, matrixDynamic: dynamic}

	var allIDs []string
	if steps, ok := findValue(raw, "steps").([]any); ok {
		allIDs = stepIDs(steps)
	}

	for _, item := range raw {
		key := item.Key.(string)
		childPath := appendPath(path, key)
		switch key {
		case "steps":
			if steps, ok := item.Value.([]any); ok {
				a.walkSteps(steps, childPath, base)
				continue
			}
		case "outputs":
			scope := base
			scope.stepIDs = nonNil(allIDs)
			a.walk(item.Value, childPath, scope)
			continue
		case "if":
			if s, ok := item.Value.(string); ok && !strings.Contains(s, exprOpen) {
				a.check(strings.TrimSpace(s), childPath, base)
				continue
			}
		}
		scope := base
		scope.stepIDs = []string{}
		a.walk(item.Value, childPath, scope)
	}
}

func (a *expressionAnalyzer) walkSteps(steps []any, path []string, base exprScope) {
	ids := stepIDs(steps)
	for i, step := range steps {
		scope := base
		// ids of the steps before this one
		scope.stepIDs = []string{}
		for j := 0; j < i; j++ {
			if ids[j] != "" {
				scope.stepIDs = append(scope.stepIDs, ids[j])
			}
		}
		a.walk(step, appendPath(path, strconv.Itoa(i)), scope)
	}
}

func (a *expressionAnalyzer) walk(v any, path []string, scope exprScope) {
	switch val := v.(type) {
	case yaml.MapSlice:
		for _, item := range val {
			key := fmt.Sprint(item.Key)
			childPath := appendPath(path, key)
			// Keys such as env names may carry spans too.
			a.checkString(key, childPath, scope)
			if s, ok := item.Value.(string); ok && key == "if" && !strings.Contains(s, exprOpen) {
				a.check(strings.TrimSpace(s), childPath, scope)
				continue
			}
			a.walk(item.Value, childPath, scope)
		}
	case []any:
		for i, item := range val {
			a.walk(item, appendPath(path, strconv.Itoa(i)), scope)
		}
	case string:
		a.checkString(val, path, scope)
	}
}

func (a *expressionAnalyzer) checkString(s string, path []string, scope exprScope) {
	if !strings.Contains(s, exprOpen) {
		return
	}
	for _, tok := range LexTemplate(s) {
		if tok.Kind == TokenExpression {
			a.check(tok.Text, path, scope)
		}
	}
}

// check classifies one span and records its outcome.
func (a *expressionAnalyzer) check(inner string, path []string, scope exprScope) {
	c := ClassifyExpression(inner)
	span := ExpressionSpan{
		Inner:   inner,
		Path:    parser.FormatInstancePath(path),
		Class:   c.Class,
		Refs:    c.Refs,
		Outcome: OutcomeValid,
	}

	for _, ref := range c.Refs {
		rule, msg, hint := a.checkRef(ref, scope)
		if msg == "" {
			continue
		}
		span.Outcome = OutcomeWarning
		span.Reason = msg
		a.warn(rule, msg, hint, path)
	}

	if span.Outcome == OutcomeValid && c.UnknownRoot != "" {
		span.Outcome = OutcomeInfo
		span.Reason = fmt.Sprintf("unrecognized context root '%s'", c.UnknownRoot)
	} else if span.Outcome == OutcomeValid && !c.Parsed {
		span.Outcome = OutcomeInfo
		span.Reason = "expression could not be parsed; translated verbatim"
	}
	a.spans = append(a.spans, span)
}

func (a *expressionAnalyzer) checkRef(ref ContextRef, scope exprScope) (rule, msg, hint string) {
	key := ref.Key()
	if key == "" && ref.Root != "matrix" {
		return "", "", ""
	}

	switch ref.Root {
	case "matrix":
		if !scope.inJob || scope.matrixDynamic || key == "" {
			return "", "", ""
		}
		if !containsFold(scope.matrixKeys, key) {
			return "expression-matrix", "unknown matrix key: " + key, suggest(key, scope.matrixKeys)
		}
	case "steps":
		if scope.stepIDs == nil {
			return "", "", ""
		}
		if !containsFold(scope.stepIDs, key) {
			return "expression-steps", "unknown step id: " + key, suggest(key, scope.stepIDs)
		}
	case "needs":
		if !scope.inJob {
			return "", "", ""
		}
		if !containsFold(scope.needs, key) {
			return "expression-needs", fmt.Sprintf("job '%s' is not listed in needs", key), suggest(key, scope.needs)
		}
	case "inputs":
		if !a.checkInputs {
			return "", "", ""
		}
		if !containsFold(a.inputs, key) {
			return "expression-inputs", "unknown input: " + key, suggest(key, a.inputs)
		}
	}
	return "", "", ""
}

func (a *expressionAnalyzer) warn(rule, msg, hint string, path []string) {
	dotted := parser.FormatInstancePath(path)
	dedupKey := dotted + "\x00" + msg
	if a.seen[dedupKey] {
		return
	}
	a.seen[dedupKey] = true

	issue := types.NewWarning(types.KindExpression, a.file, rule, dotted+": "+msg)
	issue.Path = dotted
	if hint != "" {
		issue.Hint = fmt.Sprintf("did you mean '%s'?", hint)
	}
	if a.src != nil {
		if line, col, ok := parser.LocateInstancePath(a.src, path); ok {
			issue = issue.At(line, col)
		}
	}
	a.issues = append(a.issues, issue)
}

// declaredInputs collects the inputs of workflow_call and workflow_dispatch.
// declared is false when neither trigger declares an inputs mapping.
func declaredInputs(doc *Document) (names []string, declared bool) {
	for _, event := range []string{"workflow_call", "workflow_dispatch"} {
		t, ok := doc.Trigger(event)
		if !ok {
			continue
		}
		config, ok := t.Config.(yaml.MapSlice)
		if !ok {
			continue
		}
		inputs, ok := findValue(config, "inputs").(yaml.MapSlice)
		if !ok {
			continue
		}
		declared = true
		for _, item := range inputs {
			names = append(names, item.Key.(string))
		}
	}
	return names, declared
}

func stepIDs(steps []any) []string {
	ids := make([]string, len(steps))
	for i, step := range steps {
		if m, ok := step.(yaml.MapSlice); ok {
			if id, ok := findValue(m, "id").(string); ok {
				ids[i] = id
			}
		}
	}
	return ids
}

func findValue(m yaml.MapSlice, key string) any {
	v, _ := parser.Lookup(m, key)
	return v
}

func appendPath(path []string, seg string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = seg
	return out
}

func nonNil(ids []string) []string {
	out := []string{}
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

func containsFold(list []string, s string) bool {
	return slices.ContainsFunc(list, func(item string) bool {
		return strings.EqualFold(item, s)
	})
}

// suggest returns the closest candidate to s: a fuzzy subsequence match
// first, otherwise the nearest candidate by edit distance.
func suggest(s string, candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	ranks := fuzzy.RankFindFold(s, candidates)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}

	best, bestDistance := "", maxSuggestionDistance+1
	for _, candidate := range candidates {
		d := fuzzy.LevenshteinDistance(strings.ToLower(s), strings.ToLower(candidate))
		if d < bestDistance {
			best, bestDistance = candidate, d
		}
	}
	return best
}
