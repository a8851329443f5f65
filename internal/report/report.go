// Package report renders A/B test results for terminals and browsers.
package report

import (
	"fmt"

	"promptab/internal/runner"
	"promptab/internal/stats"
)

// View is the display form of a test's results, shared by every renderer.
type View struct {
	Title           string
	TestID          string
	Status          string
	Progress        string
	Metric          string
	Outcome         string
	Winner          string
	Confidence      string
	Savings         string
	Variants        []VariantRow
	Comparisons     []ComparisonRow
	Recommendations []string
}

// VariantRow is one variant's aggregate line.
type VariantRow struct {
	Label       string
	Model       string
	Samples     string
	AverageCost string
	TotalCost   string
	Latency     string
	Quality     string
	Score       string
	Winner      bool
}

// ComparisonRow is one pairwise comparison line.
type ComparisonRow struct {
	Pair        string
	PValue      string
	Interval    string
	Effect      string
	Significant string
	Verdict     string
}

// BuildView converts results into display strings.
func BuildView(results runner.Results) View {
	test := results.Test
	analysis := results.Analysis
	title := test.Name
	if title == "" {
		title = test.ID
	}
	view := View{
		Title:    title,
		TestID:   test.ID,
		Status:   string(test.Status),
		Progress: formatProgress(results),
		Metric:   string(analysis.Metric),
		Outcome:  string(analysis.Status),
		Savings:  formatCost(analysis.Insights.EstimatedSavings),
	}
	if analysis.Winner != nil {
		view.Winner = analysis.Winner.VariantID
		view.Confidence = formatPercent(analysis.Winner.Confidence)
	}
	for _, metrics := range analysis.Variants {
		row := VariantRow{
			Label:       metrics.VariantID,
			Samples:     fmt.Sprintf("%d", metrics.TotalSamples),
			AverageCost: formatCost(metrics.AverageCost),
			TotalCost:   formatCost(metrics.TotalCost),
			Latency:     formatLatency(metrics.AverageLatencyMs),
			Quality:     formatQuality(metrics.AverageQuality),
			Score:       fmt.Sprintf("%.3f", metrics.PerformanceScore),
			Winner:      metrics.VariantID == view.Winner,
		}
		if variant, ok := test.Variant(metrics.VariantID); ok {
			row.Model = variant.Model
			if variant.Name != "" && variant.Name != variant.ID {
				row.Label = variant.ID + " (" + variant.Name + ")"
			}
		}
		view.Variants = append(view.Variants, row)
	}
	for _, comparison := range analysis.Comparisons {
		view.Comparisons = append(view.Comparisons, comparisonRow(comparison))
	}
	view.Recommendations = append(view.Recommendations, analysis.Insights.Recommendations...)
	return view
}

func comparisonRow(comparison stats.VariantComparison) ComparisonRow {
	sig := comparison.Significance
	row := ComparisonRow{
		Pair:        comparison.VariantA.VariantID + " vs " + comparison.VariantB.VariantID,
		PValue:      formatPValue(sig.PValue),
		Interval:    formatInterval(sig.ConfidenceInterval, sig.ConfidenceLevel),
		Effect:      fmt.Sprintf("%s (d=%.2f)", comparison.Effect, sig.EffectSize),
		Significant: "no",
		Verdict:     comparison.Recommendation.Action,
	}
	if sig.Insufficient {
		row.Significant = "insufficient data"
	} else if sig.Significant {
		row.Significant = "yes"
	}
	return row
}

func formatProgress(results runner.Results) string {
	progress := results.Progress
	return fmt.Sprintf("%d of %d samples completed, %d failed (%s)",
		progress.Completed, progress.Total, progress.Failed, formatPercent(progress.Percentage/100))
}
