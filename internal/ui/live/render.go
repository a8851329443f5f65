package live

import (
	"time"

	"github.com/charmbracelet/lipgloss"
)

// renderHeader renders the run header line.
func renderHeader(state State, now time.Time, noColor bool) string {
	line := "A/B test " + state.TestID
	if state.Name != "" {
		line += " | " + state.Name
	}
	if !state.StartedAt.IsZero() {
		line += " | Elapsed: " + now.Sub(state.StartedAt).Round(100*time.Millisecond).String()
	}
	return stylize(line, noColor, lipgloss.Color("33"))
}

// renderSummary renders the overall progress line.
func renderSummary(state State, noColor bool) string {
	line := formatBar(state.Settled(), state.Total, 30) +
		" " + fmtInt(state.Settled()) + "/" + fmtInt(state.Total) +
		" Completed: " + fmtInt(state.Completed) +
		" Failed: " + fmtInt(state.Failed)
	if state.Dropped > 0 {
		line += " Dropped: " + fmtInt(state.Dropped)
	}
	if state.Status != "" {
		line += " Status: " + string(state.Status)
	}
	return stylize(line, noColor, lipgloss.Color("242"))
}

// renderFooter renders the last event line.
func renderFooter(state State, noColor bool) string {
	if state.LastEvent == "" {
		return ""
	}
	return stylize("Last event: "+state.LastEvent, noColor, lipgloss.Color("244"))
}
