// Package types defines the diagnostics shared by every validation layer.
package types

import (
	"cmp"
	"fmt"
	"slices"
)

// IssueKind classifies where a ValidationIssue came from.
type IssueKind string

const (
	KindSyntax        IssueKind = "syntax"
	KindSchema        IssueKind = "schema"
	KindSecurity      IssueKind = "security"
	KindVulnerability IssueKind = "vulnerability"
	KindExpression    IssueKind = "expression"
	KindReference     IssueKind = "reference"
	KindIO            IssueKind = "io"
	KindGeneration    IssueKind = "generation"
)

// Critical reports whether issues of this kind abort output for their file.
func (k IssueKind) Critical() bool {
	switch k {
	case KindSyntax, KindIO, KindGeneration:
		return true
	default:
		return false
	}
}

// Severity of a ValidationIssue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationIssue is a single finding reported against a file. Line and
// Column are 1-based; zero means the position is unknown.
type ValidationIssue struct {
	Kind     IssueKind
	Severity Severity
	File     string
	Message  string
	Line     int
	Column   int
	// Rule is a stable identifier such as "workflow-jobs". It may be empty.
	Rule string
	// Path is the dotted location inside the document, e.g. "jobs.build.steps[0]".
	Path string
	// Hint is an optional suggestion shown below the message.
	Hint string
}

// NewError builds an error severity issue.
func NewError(kind IssueKind, file, rule, message string) ValidationIssue {
	return ValidationIssue{Kind: kind, Severity: SeverityError, File: file, Rule: rule, Message: message}
}

// NewWarning builds a warning severity issue.
func NewWarning(kind IssueKind, file, rule, message string) ValidationIssue {
	return ValidationIssue{Kind: kind, Severity: SeverityWarning, File: file, Rule: rule, Message: message}
}

// IsError reports whether the issue has error severity.
func (i ValidationIssue) IsError() bool {
	return i.Severity == SeverityError
}

// At returns a copy of the issue positioned at line and column.
func (i ValidationIssue) At(line, column int) ValidationIssue {
	i.Line = line
	i.Column = column
	return i
}

// String renders the issue as "file:line:col: severity: message [rule]".
func (i ValidationIssue) String() string {
	loc := i.File
	if i.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, i.Line)
		if i.Column > 0 {
			loc = fmt.Sprintf("%s:%d", loc, i.Column)
		}
	}
	s := fmt.Sprintf("%s: %s: %s", loc, i.Severity, i.Message)
	if i.Rule != "" {
		s += " [" + i.Rule + "]"
	}
	return s
}

// Issues is an ordered collection of findings.
type Issues []ValidationIssue

// Errors returns the error severity issues.
func (is Issues) Errors() Issues {
	return is.filter(func(i ValidationIssue) bool { return i.IsError() })
}

// Warnings returns the warning severity issues.
func (is Issues) Warnings() Issues {
	return is.filter(func(i ValidationIssue) bool { return !i.IsError() })
}

// OfKind returns the issues of the given kinds.
func (is Issues) OfKind(kinds ...IssueKind) Issues {
	return is.filter(func(i ValidationIssue) bool { return slices.Contains(kinds, i.Kind) })
}

// HasCritical reports whether any issue aborts output for its file.
func (is Issues) HasCritical() bool {
	return slices.ContainsFunc(is, func(i ValidationIssue) bool { return i.IsError() && i.Kind.Critical() })
}

func (is Issues) filter(keep func(ValidationIssue) bool) Issues {
	var out Issues
	for _, i := range is {
		if keep(i) {
			out = append(out, i)
		}
	}
	return out
}

// Sorted returns the issues ordered by file, line, column and message.
func (is Issues) Sorted() Issues {
	out := slices.Clone(is)
	slices.SortStableFunc(out, func(a, b ValidationIssue) int {
		return cmp.Or(
			cmp.Compare(a.File, b.File),
			cmp.Compare(a.Line, b.Line),
			cmp.Compare(a.Column, b.Column),
			cmp.Compare(a.Message, b.Message),
		)
	})
	return out
}
