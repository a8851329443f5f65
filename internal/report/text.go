package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"promptab/internal/runner"
)

// TextOptions configures Text.
type TextOptions struct {
	NoColor bool
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	winnerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// Text writes a terminal summary of results.
func Text(w io.Writer, results runner.Results, opts TextOptions) error {
	_, err := io.WriteString(w, RenderText(BuildView(results), opts))
	return err
}

// RenderText renders a view as a terminal summary.
func RenderText(view View, opts TextOptions) string {
	style := func(s lipgloss.Style, text string) string {
		if opts.NoColor {
			return text
		}
		return s.Render(text)
	}

	var b strings.Builder
	b.WriteString(style(titleStyle, view.Title) + "\n")
	b.WriteString(style(mutedStyle, fmt.Sprintf("Test %s | %s | %s", view.TestID, view.Status, view.Progress)) + "\n")
	b.WriteString(fmt.Sprintf("Metric: %s | Outcome: %s\n", view.Metric, view.Outcome))
	if view.Winner != "" {
		b.WriteString(style(winnerStyle, fmt.Sprintf("Winner: %s (confidence %s)", view.Winner, view.Confidence)) + "\n")
	} else {
		b.WriteString("Winner: none\n")
	}

	variants := newTable(opts, "Variant", "Model", "Samples", "Avg cost", "Total cost", "Avg latency", "Quality", "Score")
	for _, row := range view.Variants {
		label := row.Label
		if row.Winner {
			label = "* " + label
		}
		variants.Row(label, row.Model, row.Samples, row.AverageCost, row.TotalCost, row.Latency, row.Quality, row.Score)
	}
	b.WriteString(variants.String() + "\n")

	if len(view.Comparisons) > 0 {
		comparisons := newTable(opts, "Pair", "p-value", "Interval", "Effect", "Significant", "Recommendation")
		for _, row := range view.Comparisons {
			comparisons.Row(row.Pair, row.PValue, row.Interval, row.Effect, row.Significant, row.Verdict)
		}
		b.WriteString(comparisons.String() + "\n")
	}

	if len(view.Recommendations) > 0 {
		b.WriteString(fmt.Sprintf("Estimated savings: %s\n", view.Savings))
		for _, item := range view.Recommendations {
			b.WriteString("- " + item + "\n")
		}
	}
	return b.String()
}

func newTable(opts TextOptions, headers ...string) *table.Table {
	t := table.New().Border(lipgloss.NormalBorder()).Headers(headers...)
	if opts.NoColor {
		return t
	}
	return t.StyleFunc(func(row, _ int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		return cellStyle
	})
}
