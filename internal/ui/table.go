package ui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/gpustat/internal/monitor"
)

// UtilizationColumn is averaged into the per-host bar when present.
const UtilizationColumn = "utilization"

const summaryBarWidth = 20

// TableColumn defines a table column with name and width.
type TableColumn struct {
	Title string
	Width int
}

// NewTable creates a non-interactive Bubbles table with default styling.
func NewTable(columns []TableColumn, rows []table.Row) table.Model {
	cols := make([]table.Column, len(columns))
	for i, c := range columns {
		cols[i] = table.Column{Title: c.Title, Width: c.Width}
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(len(rows)+1), // +1 for header
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorMuted).
		BorderBottom(true).
		Bold(true).
		Foreground(ColorPrimary)
	s.Cell = s.Cell.Foreground(ColorPrimary)
	// Nothing is selectable, so the selected row looks like any other
	s.Selected = s.Cell
	t.SetStyles(s)
	return t
}

// RenderPollTable renders a poll result for the terminal: one summary line
// per host followed by a table of every status row.
func RenderPollTable(result monitor.PollResult) string {
	if len(result) == 0 {
		return "No hosts configured\n"
	}

	var sb strings.Builder
	for _, host := range result {
		sb.WriteString(renderHostLine(host))
		sb.WriteString("\n")
	}

	columns := collectColumns(result)
	if len(columns) == 0 {
		return sb.String()
	}

	titles := append([]string{"host"}, columns...)
	var rows []table.Row
	for _, host := range result {
		for _, status := range host.Status {
			row := make(table.Row, 0, len(titles))
			row = append(row, host.Hostname)
			for _, col := range columns {
				row = append(row, status[col])
			}
			rows = append(rows, row)
		}
	}

	sb.WriteString("\n")
	sb.WriteString(NewTable(sizeColumns(titles, rows), rows).View())
	sb.WriteString("\n")
	return sb.String()
}

func renderHostLine(host monitor.HostResult) string {
	successStyle := lipgloss.NewStyle().Foreground(ColorSuccess)
	errorStyle := lipgloss.NewStyle().Foreground(ColorError)
	mutedStyle := lipgloss.NewStyle().Foreground(ColorMuted)
	hostStyle := lipgloss.NewStyle().Bold(true)

	name := padRight(hostStyle.Render(host.Hostname), 18)
	if !host.Success {
		msg := host.Message
		if msg == "" {
			msg = "failed"
		}
		return "  " + errorStyle.Render(SymbolFail) + " " + name + errorStyle.Render(msg)
	}

	line := "  " + successStyle.Render(SymbolSuccess) + " " + name +
		padRight(mutedStyle.Render(fmt.Sprintf("%d row(s)", len(host.Status))), 12)
	if avg, ok := averageUtilization(host.Status); ok {
		line += RenderBar(avg, summaryBarWidth)
	}
	return line
}

// averageUtilization averages the numeric utilization values of rows.
func averageUtilization(rows []monitor.StatusRow) (float64, bool) {
	var sum float64
	n := 0
	for _, row := range rows {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[UtilizationColumn]), 64)
		if err != nil {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// collectColumns returns the header columns of every host in first-seen
// order. Hosts without a recorded header contribute their keys sorted.
func collectColumns(result monitor.PollResult) []string {
	seen := make(map[string]bool)
	var columns []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			columns = append(columns, name)
		}
	}

	for _, host := range result {
		if len(host.Columns) > 0 {
			for _, c := range host.Columns {
				add(c)
			}
			continue
		}
		for _, row := range host.Status {
			keys := make([]string, 0, len(row))
			for k := range row {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				add(k)
			}
		}
	}
	return columns
}

func sizeColumns(titles []string, rows []table.Row) []TableColumn {
	cols := make([]TableColumn, len(titles))
	for i, title := range titles {
		width := lipgloss.Width(title)
		for _, row := range rows {
			if w := lipgloss.Width(row[i]); w > width {
				width = w
			}
		}
		cols[i] = TableColumn{Title: strings.ToUpper(title), Width: width + 1}
	}
	return cols
}

// padRight pads a string to the specified visible width.
func padRight(s string, width int) string {
	visibleLen := lipgloss.Width(s)
	if visibleLen >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visibleLen)
}
