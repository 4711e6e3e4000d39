package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/githubnext/gh-flowgen/pkg/console"
	"github.com/githubnext/gh-flowgen/pkg/types"
)

// contextRadius is the number of source lines shown around a finding.
const contextRadius = 2

// FormatValidationError formats a command error for console output. Multi
// line messages keep their structure.
func FormatValidationError(err error) string {
	if err == nil {
		return ""
	}
	return console.FormatErrorMessage(err.Error())
}

// PrintValidationError prints err to stderr with console formatting.
func PrintValidationError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, FormatValidationError(err))
}

// formatIssue renders one finding compiler style, with a source excerpt when
// the file content is known.
func formatIssue(root string, issue types.ValidationIssue, sources map[string][]byte) string {
	severity := "warning"
	if issue.IsError() {
		severity = "error"
	}
	msg := issue.Message
	if issue.Rule != "" {
		msg += " [" + string(issue.Kind) + "/" + issue.Rule + "]"
	} else {
		msg += " [" + string(issue.Kind) + "]"
	}
	return console.FormatError(console.CompilerError{
		Position: console.ErrorPosition{
			File:   displayPath(root, issue.File),
			Line:   issue.Line,
			Column: issue.Column,
		},
		Type:    severity,
		Message: msg,
		Hint:    issue.Hint,
		Context: console.SourceContext(sources[issue.File], issue.Line, contextRadius),
	})
}

// printIssues writes every finding, errors first within each file.
func printIssues(w io.Writer, root string, issues types.Issues, sources map[string][]byte) {
	for _, issue := range issues.Sorted() {
		fmt.Fprint(w, formatIssue(root, issue, sources))
	}
}

// printSummary reports what the batch produced. With --verbose it adds a
// per-file table of the stage each input reached.
func printSummary(config ImportConfig, result *ImportResult, inputs int) {
	errs, warns := len(result.Issues.Errors()), len(result.Issues.Warnings())

	if config.Verbose && len(result.Stages) > 0 {
		fmt.Fprint(config.Stderr, console.RenderTable(stageTable(result)))
	}

	switch {
	case config.ValidateOnly:
		msg := fmt.Sprintf("Validated %d file(s): %d error(s), %d warning(s)", inputs, errs, warns)
		fmt.Fprintln(config.Stderr, summaryLine(errs, warns, msg))
	case config.Preview:
		msg := fmt.Sprintf("Previewed %d pipeline(s) and %d unit(s): %d error(s), %d warning(s)",
			len(result.Pipelines), len(result.Units), errs, warns)
		fmt.Fprintln(config.Stderr, summaryLine(errs, warns, msg))
	default:
		msg := fmt.Sprintf("Generated %d pipeline(s) and %d unit(s) in %s (%d written): %d error(s), %d warning(s)",
			len(result.Pipelines), len(result.Units), displayPath(result.Root, result.OutDir), len(result.Written), errs, warns)
		fmt.Fprintln(config.Stderr, summaryLine(errs, warns, msg))
	}
}

func summaryLine(errs, warns int, msg string) string {
	switch {
	case errs > 0:
		return console.FormatErrorMessage(msg)
	case warns > 0:
		return console.FormatWarningMessage(msg)
	default:
		return console.FormatSuccessMessage(msg)
	}
}

func stageTable(result *ImportResult) console.TableConfig {
	counts := make(map[string][2]int)
	for _, issue := range result.Issues {
		c := counts[issue.File]
		if issue.IsError() {
			c[0]++
		} else {
			c[1]++
		}
		counts[issue.File] = c
	}

	paths := make([]string, 0, len(result.Stages))
	for p := range result.Stages {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	config := console.TableConfig{
		Title:   "Files",
		Headers: []string{"File", "Stage", "Errors", "Warnings"},
	}
	for _, p := range paths {
		c := counts[p]
		config.Rows = append(config.Rows, []string{
			displayPath(result.Root, p),
			result.Stages[p].String(),
			strconv.Itoa(c[0]),
			strconv.Itoa(c[1]),
		})
	}
	return config
}
