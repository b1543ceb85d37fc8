package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Table renders rows of static text in aligned columns.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// NewTable creates a table.
func NewTable(title string, headers ...string) *Table {
	return &Table{Title: title, Headers: headers}
}

// AddRow appends a row. Missing cells render empty; extra cells are dropped.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// View renders the table, or an empty string when it has no rows.
func (t *Table) View(s Styles) string {
	if len(t.Rows) == 0 {
		return ""
	}

	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i := 0; i < len(widths) && i < len(row); i++ {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	var b strings.Builder
	if t.Title != "" {
		b.WriteString(s.Title.Render(t.Title) + "\n")
	}

	writeRow := func(cells []string, style lipgloss.Style) {
		parts := make([]string, len(widths))
		for i, w := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = style.Width(w + 2).Render(cell)
		}
		b.WriteString(strings.Join(parts, s.Muted.Render("│")) + "\n")
	}

	writeRow(t.Headers, s.Bold.Padding(0, 1))
	total := len(widths) - 1
	for _, w := range widths {
		total += w + 2
	}
	b.WriteString(s.Muted.Render(strings.Repeat("─", total)) + "\n")
	for _, row := range t.Rows {
		writeRow(row, s.Body.Padding(0, 1))
	}
	return b.String()
}
