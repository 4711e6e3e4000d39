package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/githubnext/gh-flowgen/pkg/fileutil"
	"github.com/githubnext/gh-flowgen/pkg/logger"
	"github.com/githubnext/gh-flowgen/pkg/types"
)

var importReportLog = logger.New("cli:import_report")

// ReportIssue is one finding in the JSON validation report.
type ReportIssue struct {
	File    string `json:"file" jsonschema:"file the finding was reported against, relative to the scan root"`
	Message string `json:"message" jsonschema:"human readable description"`
	Line    int    `json:"line,omitempty" jsonschema:"1-based line, omitted when unknown"`
	Column  int    `json:"column,omitempty" jsonschema:"1-based column, omitted when unknown"`
	Type    string `json:"type" jsonschema:"layer that produced the finding: syntax, schema, security, vulnerability, expression, reference, io or generation"`
	Rule    string `json:"rule,omitempty" jsonschema:"stable rule identifier such as workflow-jobs"`
}

// Report is the machine readable outcome of a batch.
type Report struct {
	Valid    bool          `json:"valid" jsonschema:"true when the batch has no errors"`
	Errors   []ReportIssue `json:"errors"`
	Warnings []ReportIssue `json:"warnings"`
}

// NewReport builds a report from the issues of a batch. File names are made
// relative to root.
func NewReport(root string, issues types.Issues) *Report {
	r := &Report{Errors: []ReportIssue{}, Warnings: []ReportIssue{}}
	for _, issue := range issues.Sorted() {
		ri := ReportIssue{
			File:    displayPath(root, issue.File),
			Message: issue.Message,
			Line:    issue.Line,
			Column:  issue.Column,
			Type:    string(issue.Kind),
			Rule:    issue.Rule,
		}
		if issue.IsError() {
			r.Errors = append(r.Errors, ri)
		} else {
			r.Warnings = append(r.Warnings, ri)
		}
	}
	r.Valid = len(r.Errors) == 0
	importReportLog.Printf("Report: valid=%v, errors=%d, warnings=%d", r.Valid, len(r.Errors), len(r.Warnings))
	return r
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// writeReport writes the report to dest, a path or "-" for stdout.
func writeReport(r *Report, dest string, stdout io.Writer) error {
	if dest == "-" {
		return r.WriteJSON(stdout)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode validation report: %w", err)
	}
	if err := fileutil.WriteFileAtomic(dest, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write validation report: %w", err)
	}
	importReportLog.Printf("Wrote report to %s", dest)
	return nil
}

// ReportSchema returns the JSON Schema of Report.
func ReportSchema() ([]byte, error) {
	schema, err := jsonschema.For[Report](nil)
	if err != nil {
		return nil, fmt.Errorf("failed to derive report schema: %w", err)
	}
	schema.Title = "gh-flowgen validation report"
	return json.MarshalIndent(schema, "", "  ")
}

// displayPath returns path relative to root in slash form when it lies
// inside root.
func displayPath(root, path string) string {
	if root == "" || path == "" || !filepath.IsAbs(path) {
		return filepath.ToSlash(path)
	}
	roots := []string{root}
	if resolved, err := filepath.EvalSymlinks(root); err == nil && resolved != root {
		roots = append(roots, resolved)
	}
	for _, r := range roots {
		rel := fileutil.RelativeTo(r, path)
		if rel != ".." && !filepath.IsAbs(rel) && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(path)
}
