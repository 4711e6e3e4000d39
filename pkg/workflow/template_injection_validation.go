// This file detects template injection risks.
//
// Expressions are substituted into a script before the shell or the
// JavaScript runtime sees it, so an expression that expands to
// attacker-controlled event data (issue titles, comment bodies, branch
// names, ...) can inject code. Such values must be passed through env
// instead:
//
//	env:
//	  TITLE: ${{ github.event.issue.title }}
//	run: echo "$TITLE"
//
// Two script contexts are checked: the run field of steps and the script
// input of actions/github-script.
//
// The same file checks the pull_request_target / workflow_run pattern of
// checking out the untrusted head of a pull request in a privileged context.

package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/types"
)

var templateInjectionValidationLog = logger.New("workflow:template_injection_validation")

// untrustedContextRegexes match context references whose value is controlled
// by whoever triggered the event.
var untrustedContextRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^github\.head_ref$`),
	regexp.MustCompile(`(?i)^github\.event\.(issue|pull_request|discussion)\.(title|body)$`),
	regexp.MustCompile(`(?i)^github\.event\.(comment|review|review_comment)\.body$`),
	regexp.MustCompile(`(?i)^github\.event\.pages\.[^.]*\.page_name$`),
	regexp.MustCompile(`(?i)^github\.event\.commits\.[^.]*\.(message|author\.(email|name))$`),
	regexp.MustCompile(`(?i)^github\.event\.head_commit\.(message|author\.(email|name))$`),
	regexp.MustCompile(`(?i)^github\.event\.pull_request\.head\.(ref|label|repo\.default_branch)$`),
	regexp.MustCompile(`(?i)^github\.event\.workflow_run\.(head_branch|display_title|head_commit\.(message|author\.(email|name)))$`),
}

// untrustedRefRegex matches references to the head of a pull request.
var untrustedRefRegex = regexp.MustCompile(`(?i)^(github\.head_ref|github\.event\.pull_request\.head\.(sha|ref)|github\.event\.workflow_run\.head_(sha|branch))$`)

// privilegedEvents run with a write token and secrets even for forks.
var privilegedEvents = []string{"pull_request_target", "workflow_run"}

// IsUntrustedContext reports whether ref expands to attacker-controlled data.
func IsUntrustedContext(ref ContextRef) bool {
	s := ref.String()
	for _, re := range untrustedContextRegexes {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// validateNoTemplateInjection reports untrusted expressions in scripts.
func validateNoTemplateInjection(doc *Document) types.Issues {
	var issues types.Issues
	for _, s := range FlattenStrings(doc.Source.Tree, nil) {
		if !isScriptContext(doc.Source.Tree, s) || !strings.Contains(s.Value, exprOpen) {
			continue
		}
		for _, tok := range LexTemplate(s.Value) {
			if tok.Kind != TokenExpression {
				continue
			}
			for _, ref := range ClassifyExpression(tok.Text).Refs {
				if !IsUntrustedContext(ref) {
					continue
				}
				templateInjectionValidationLog.Printf("Found template injection risk: %s in %v", ref, s.Path)
				msg := fmt.Sprintf("untrusted value ${{%s}} is interpolated into a script", tok.Text)
				issues = append(issues, securityWarning(doc, "security-template-injection", s.Path, msg,
					fmt.Sprintf("pass it through env, e.g. VALUE: ${{ %s }}, and use \"$VALUE\" in the script", ref)))
				break
			}
		}
	}
	return issues
}

// isScriptContext reports whether s is a run command or a github-script body.
func isScriptContext(tree yaml.MapSlice, s FlatString) bool {
	n := len(s.Path)
	switch {
	case s.Key == "run" && n >= 1 && s.Path[n-1] == "run":
		return true
	case s.Key == "script" && n >= 3 && s.Path[n-2] == "with":
		step, ok := valueAtPath(tree, s.Path[:n-2]).(yaml.MapSlice)
		if !ok {
			return false
		}
		uses, _ := findValue(step, "uses").(string)
		return strings.HasPrefix(uses, "actions/github-script@")
	}
	return false
}

// validateUntrustedCheckout reports checkouts of the pull request head in
// jobs triggered by privileged events.
func validateUntrustedCheckout(doc *Document) types.Issues {
	privileged := ""
	for _, event := range privilegedEvents {
		if _, ok := doc.Trigger(event); ok {
			privileged = event
			break
		}
	}
	if privileged == "" {
		return nil
	}

	var issues types.Issues
	for _, job := range doc.Jobs {
		for i, step := range job.Steps {
			if !strings.HasPrefix(step.Uses, "actions/checkout@") {
				continue
			}
			ref, _ := findValue(step.With, "ref").(string)
			if !referencesUntrustedHead(ref) {
				continue
			}
			path := []string{"jobs", job.ID, "steps", fmt.Sprint(i), "with", "ref"}
			msg := fmt.Sprintf("%s checks out untrusted pull request code", privileged)
			issues = append(issues, securityWarning(doc, "security-untrusted-checkout", path, msg,
				"do not build or run code from the pull request head in privileged workflows"))
		}
	}
	return issues
}

func referencesUntrustedHead(s string) bool {
	for _, tok := range LexTemplate(s) {
		if tok.Kind != TokenExpression {
			continue
		}
		for _, ref := range ClassifyExpression(tok.Text).Refs {
			if untrustedRefRegex.MatchString(ref.String()) {
				return true
			}
		}
	}
	return false
}

// valueAtPath follows path through tree.
func valueAtPath(tree any, path []string) any {
	current := tree
	for _, seg := range path {
		switch val := current.(type) {
		case yaml.MapSlice:
			current = findValue(val, seg)
		case []any:
			var idx int
			if _, err := fmt.Sscanf(seg, "%d", &idx); err != nil || idx < 0 || idx >= len(val) {
				return nil
			}
			current = val[idx]
		default:
			return nil
		}
	}
	return current
}
