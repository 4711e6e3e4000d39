// Package styles holds the shared color palette and lipgloss styles used for
// terminal output.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	ColorError   = lipgloss.AdaptiveColor{Light: "#D73737", Dark: "#FF5555"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#F1FA8C"}
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#27AE60", Dark: "#50FA7B"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#2980B9", Dark: "#8BE9FD"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#6C7A89", Dark: "#6272A4"}
	ColorAccent  = lipgloss.AdaptiveColor{Light: "#8E44AD", Dark: "#BD93F9"}
	ColorBorder  = lipgloss.AdaptiveColor{Light: "#BDC3C7", Dark: "#44475A"}
)

var (
	Error   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	Warning = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	Success = lipgloss.NewStyle().Foreground(ColorSuccess)
	Info    = lipgloss.NewStyle().Foreground(ColorInfo)
	Muted   = lipgloss.NewStyle().Foreground(ColorMuted)
	// Location styles the file:line:col prefix of diagnostics.
	Location = lipgloss.NewStyle().Bold(true)
	// Highlight marks the offending column in a source excerpt.
	Highlight = lipgloss.NewStyle().Foreground(ColorError)
	// TableHeader is applied to header rows of rendered tables.
	TableHeader = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true).Padding(0, 1)
	TableCell   = lipgloss.NewStyle().Padding(0, 1)
)
