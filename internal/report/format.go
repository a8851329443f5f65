package report

import (
	"fmt"

	"promptab/internal/stats"
)

// formatCost renders a dollar amount with enough precision for per-call prices.
func formatCost(value float64) string {
	return fmt.Sprintf("$%.6f", value)
}

// formatPercent renders a 0..1 ratio as a percentage.
func formatPercent(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

func formatLatency(ms float64) string {
	if ms >= 1000 {
		return fmt.Sprintf("%.2fs", ms/1000)
	}
	return fmt.Sprintf("%.0fms", ms)
}

func formatQuality(quality *float64) string {
	if quality == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *quality)
}

func formatPValue(p float64) string {
	if p < 0.001 {
		return "<0.001"
	}
	return fmt.Sprintf("%.3f", p)
}

// formatInterval renders the confidence interval of the mean difference.
func formatInterval(interval stats.Interval, level float64) string {
	return fmt.Sprintf("[%.6g, %.6g] @%s", interval.Lower, interval.Upper, formatPercent(level))
}
