package console

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/githubnext/gh-flowgen/pkg/styles"
)

// TableConfig describes a table rendered by RenderTable.
type TableConfig struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// RenderTable renders config as a bordered table. An empty table renders as
// the empty string.
func RenderTable(config TableConfig) string {
	if len(config.Headers) == 0 && len(config.Rows) == 0 {
		return ""
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.ColorBorder)).
		Headers(config.Headers...).
		Rows(config.Rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.TableHeader
			}
			return styles.TableCell
		})

	var sb strings.Builder
	if config.Title != "" {
		sb.WriteString(styles.Location.Render(config.Title))
		sb.WriteString("\n")
	}
	sb.WriteString(t.Render())
	sb.WriteString("\n")
	return sb.String()
}
