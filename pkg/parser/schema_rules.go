package parser

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-yaml"

	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/types"
)

var schemaRulesLog = logger.New("parser:schema_rules")

// Structural rules that JSON Schema cannot express on its own. They run after
// schema validation and report with the same issue kind.

func validatePipelineRules(doc *Document) types.Issues {
	var issues types.Issues
	issues = append(issues, validateSchedules(doc)...)
	issues = append(issues, validateNeeds(doc)...)
	if len(issues) > 0 {
		schemaRulesLog.Printf("%s: %d rule violation(s)", doc.Path, len(issues))
	}
	return issues
}

func validateSchedules(doc *Document) types.Issues {
	on, ok := doc.Get("on")
	if !ok {
		return nil
	}
	triggers, ok := asMapSlice(on)
	if !ok {
		return nil
	}
	schedule, ok := Lookup(triggers, "schedule")
	if !ok {
		return nil
	}

	entries, ok := schedule.([]any)
	if !ok {
		return types.Issues{ruleIssue(doc, "workflow-schedule", []string{"on", "schedule"}, "schedule must be a list of cron entries")}
	}

	var issues types.Issues
	for i, entry := range entries {
		loc := []string{"on", "schedule", strconv.Itoa(i)}
		m, ok := asMapSlice(entry)
		if !ok {
			issues = append(issues, ruleIssue(doc, "workflow-schedule", loc, "schedule entry must be a mapping with a 'cron' key"))
			continue
		}
		expr, ok := Lookup(m, "cron")
		if !ok {
			issues = append(issues, ruleIssue(doc, "workflow-schedule", loc, "schedule entry is missing 'cron'"))
			continue
		}
		s, ok := expr.(string)
		if !ok {
			issues = append(issues, ruleIssue(doc, "workflow-schedule", append(loc, "cron"), "cron must be a string"))
			continue
		}
		if err := ValidateCronExpression(s); err != nil {
			issues = append(issues, ruleIssue(doc, "workflow-schedule", append(loc, "cron"), err.Error()))
		}
	}
	return issues
}

func validateNeeds(doc *Document) types.Issues {
	jobsValue, ok := doc.Get("jobs")
	if !ok {
		return nil
	}
	jobs, ok := asMapSlice(jobsValue)
	if !ok {
		return nil
	}

	declared := make(map[string]bool, len(jobs))
	for _, item := range jobs {
		declared[item.Key.(string)] = true
	}

	var issues types.Issues
	for _, item := range jobs {
		id := item.Key.(string)
		job, ok := asMapSlice(item.Value)
		if !ok {
			continue
		}
		needs, ok := Lookup(job, "needs")
		if !ok {
			continue
		}
		loc := []string{"jobs", id, "needs"}
		for _, need := range stringList(needs) {
			switch {
			case need == id:
				issues = append(issues, ruleIssue(doc, "job-needs", loc, fmt.Sprintf("job '%s' cannot depend on itself", id)))
			case !declared[need]:
				issues = append(issues, ruleIssue(doc, "job-needs", loc, fmt.Sprintf("job '%s' depends on unknown job '%s'", id, need)))
			}
		}
	}
	return issues
}

func validateUnitRules(doc *Document) types.Issues {
	runsValue, ok := doc.Get("runs")
	if !ok {
		return nil
	}
	runs, ok := asMapSlice(runsValue)
	if !ok {
		return nil
	}
	if using, _ := Lookup(runs, "using"); using != "composite" {
		return nil
	}
	stepsValue, _ := Lookup(runs, "steps")
	steps, _ := stepsValue.([]any)

	var issues types.Issues
	for i, s := range steps {
		step, ok := asMapSlice(s)
		if !ok {
			continue
		}
		_, hasRun := Lookup(step, "run")
		_, hasShell := Lookup(step, "shell")
		if hasRun && !hasShell {
			loc := []string{"runs", "steps", strconv.Itoa(i)}
			issues = append(issues, ruleIssue(doc, "unit-step-shell", loc, "composite unit steps with 'run' must declare 'shell'"))
		}
	}
	return issues
}

func ruleIssue(doc *Document, rule string, loc []string, msg string) types.ValidationIssue {
	path := FormatInstancePath(loc)
	issue := types.NewError(types.KindSchema, doc.Path, rule, path+": "+msg)
	issue.Path = path
	if line, col, ok := LocateInstancePath(doc, loc); ok {
		issue = issue.At(line, col)
	}
	return issue
}

// stringList accepts the scalar-or-list shape used by needs, branches and
// similar keys.
func stringList(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func asMapSlice(v any) (yaml.MapSlice, bool) {
	m, ok := v.(yaml.MapSlice)
	return m, ok
}

// valueAt follows an instance path through the tree.
func valueAt(tree any, loc []string) (any, bool) {
	current := tree
	for _, seg := range loc {
		switch val := current.(type) {
		case yaml.MapSlice:
			next, ok := Lookup(val, seg)
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(val) {
				return nil, false
			}
			current = val[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// toPlain converts ordered maps into map[string]any for JSON encoding.
func toPlain(v any) any {
	switch val := v.(type) {
	case yaml.MapSlice:
		out := make(map[string]any, len(val))
		for _, item := range val {
			out[keyString(item.Key)] = toPlain(item.Value)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = toPlain(item)
		}
		return out
	default:
		return val
	}
}
