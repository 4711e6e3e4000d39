// Package console formats user facing terminal output: status lines,
// compiler-style diagnostics with source excerpts, tables, spinners and
// confirmation prompts. All styling goes through lipgloss so output degrades
// to plain text when stdout is not a terminal.
package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/githubnext/gh-flowgen/pkg/styles"
)

// ErrorPosition locates a diagnostic in a source file. Line and Column are
// 1-based; zero means unknown.
type ErrorPosition struct {
	File   string
	Line   int
	Column int
}

// CompilerError is a diagnostic rendered in the familiar
// "file:line:col: type: message" format.
type CompilerError struct {
	Position ErrorPosition
	Type     string // "error", "warning" or "info"
	Message  string
	Hint     string
	// Context holds source lines surrounding Position.Line, the middle one
	// being the offending line.
	Context []string
}

func FormatSuccessMessage(message string) string {
	return styles.Success.Render("✓ ") + message
}

func FormatInfoMessage(message string) string {
	return styles.Info.Render("ℹ ") + message
}

func FormatWarningMessage(message string) string {
	return styles.Warning.Render("⚠ ") + message
}

func FormatErrorMessage(message string) string {
	return styles.Error.Render("✗ ") + message
}

// FormatVerboseMessage renders secondary detail shown with --verbose.
func FormatVerboseMessage(message string) string {
	return styles.Muted.Render("  " + message)
}

// FormatCommandMessage renders a suggested shell command.
func FormatCommandMessage(command string) string {
	return styles.Info.Render("⚡ " + command)
}

// FormatError renders a CompilerError with an optional source excerpt and hint.
func FormatError(err CompilerError) string {
	var sb strings.Builder

	sb.WriteString(styles.Location.Render(formatPosition(err.Position)))
	sb.WriteString(" ")
	sb.WriteString(typeStyle(err.Type).Render(err.Type + ":"))
	sb.WriteString(" ")
	sb.WriteString(err.Message)
	sb.WriteString("\n")

	if len(err.Context) > 0 && err.Position.Line > 0 {
		sb.WriteString(renderContext(err))
	}

	if err.Hint != "" {
		sb.WriteString(styles.Muted.Render("  hint: " + err.Hint))
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatPosition(pos ErrorPosition) string {
	switch {
	case pos.File == "":
		return "<input>:"
	case pos.Line <= 0:
		return pos.File + ":"
	case pos.Column <= 0:
		return fmt.Sprintf("%s:%d:", pos.File, pos.Line)
	default:
		return fmt.Sprintf("%s:%d:%d:", pos.File, pos.Line, pos.Column)
	}
}

func typeStyle(kind string) lipgloss.Style {
	switch kind {
	case "error":
		return styles.Error
	case "warning":
		return styles.Warning
	default:
		return styles.Info
	}
}

// renderContext prints the context lines with gutters. The offending line
// is the middle element of Context and gets a caret under Column.
func renderContext(err CompilerError) string {
	var sb strings.Builder
	errorIndex := len(err.Context) / 2
	firstLine := err.Position.Line - errorIndex
	width := len(fmt.Sprint(firstLine + len(err.Context) - 1))

	for i, line := range err.Context {
		lineNum := firstLine + i
		if lineNum < 1 {
			continue
		}
		gutter := fmt.Sprintf("%*d | ", width, lineNum)
		sb.WriteString(styles.Muted.Render(gutter))
		sb.WriteString(line)
		sb.WriteString("\n")
		if i == errorIndex && err.Position.Column > 0 {
			pad := strings.Repeat(" ", width) + " | " + strings.Repeat(" ", err.Position.Column-1)
			sb.WriteString(styles.Muted.Render(pad))
			sb.WriteString(styles.Highlight.Render("^"))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// SourceContext returns up to radius lines on each side of line (1-based)
// from source, centered on line. It returns nil when line is out of range.
func SourceContext(source []byte, line, radius int) []string {
	if line <= 0 || len(source) == 0 {
		return nil
	}
	lines := strings.Split(strings.TrimRight(string(source), "\n"), "\n")
	if line > len(lines) {
		return nil
	}
	idx := line - 1
	// keep the offending line in the middle so renderContext can find it
	before := min(radius, idx)
	after := min(radius, len(lines)-1-idx)
	span := min(before, after)
	return lines[idx-span : idx+span+1]
}
