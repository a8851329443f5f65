package live

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// defaultColumns returns the variant table layout.
func defaultColumns() []table.Column {
	return []table.Column{
		{Title: "Variant", Width: 18},
		{Title: "Model", Width: 18},
		{Title: "Samples", Width: 9},
		{Title: "OK", Width: 5},
		{Title: "Fail", Width: 5},
		{Title: "Avg cost", Width: 11},
		{Title: "Avg latency", Width: 11},
		{Title: "Last error", Width: 14},
	}
}

// columnsForWidth widens the first column when the terminal allows it.
func columnsForWidth(width int) []table.Column {
	columns := defaultColumns()
	used := 0
	for _, column := range columns {
		used += column.Width + 2
	}
	if extra := width - used; extra > 0 {
		columns[0].Width += min(extra, 24)
	}
	return columns
}

// tableStyles returns table styles for the UI.
func tableStyles(noColor bool) table.Styles {
	styles := table.DefaultStyles()
	if noColor {
		styles.Selected = lipgloss.NewStyle()
		return styles
	}
	styles.Header = styles.Header.Foreground(lipgloss.Color("252"))
	styles.Selected = lipgloss.NewStyle()
	return styles
}

// rowsForState converts UI state into table rows.
func rowsForState(state State) []table.Row {
	rows := make([]table.Row, 0, len(state.Rows))
	for _, row := range state.Rows {
		label := row.ID
		if row.Name != "" && row.Name != row.ID {
			label = row.ID + " " + row.Name
		}
		rows = append(rows, table.Row{
			truncate(label, 40),
			row.Model,
			formatCounts(row),
			fmtInt(row.Succeeded),
			fmtInt(row.Failed),
			formatCost(row.AverageCost),
			formatLatencyMs(row.AverageLatencyMs),
			row.LastError,
		})
	}
	return rows
}
