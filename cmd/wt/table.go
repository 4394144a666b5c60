package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// tableStyles holds the pre-computed lipgloss styles for the ls/status
// column tables, replacing the teacher's raw fmt.Printf column padding.
type tableStyles struct {
	header lipgloss.Style
	dim    lipgloss.Style
}

func newTableStyles() tableStyles {
	return tableStyles{
		header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245")),
		dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// renderTable lays out headers and rows into fixed-width columns sized to
// the widest cell (header or row) in each column, then joins rows with
// lipgloss.JoinHorizontal so ANSI-colored cells (branch names, status
// badges) still line up -- lipgloss measures visible width, so colorized
// cells don't throw off alignment the way naive fmt.Printf width specs did.
func renderTable(headers []string, rows [][]string) string {
	styles := newTableStyles()
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				continue
			}
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	var headerCells []string
	for i, h := range headers {
		headerCells = append(headerCells, styles.header.Width(widths[i]).Render(h))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, headerCells...))
	b.WriteString("\n")

	totalWidth := 0
	for _, w := range widths {
		totalWidth += w + 1
	}
	b.WriteString(styles.dim.Render(strings.Repeat("-", totalWidth)))
	b.WriteString("\n")

	for _, row := range rows {
		var cells []string
		for i, cell := range row {
			width := 0
			if i < len(widths) {
				width = widths[i]
			}
			cells = append(cells, lipgloss.NewStyle().Width(width).Render(cell))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
		b.WriteString("\n")
	}

	return b.String()
}
