package stats

import (
	"fmt"

	"promptab/internal/abtest"
)

// TestStatus is the overall verdict of an A/B test analysis.
type TestStatus string

const (
	StatusSignificant  TestStatus = "significant"
	StatusInconclusive TestStatus = "inconclusive"
	StatusIncomplete   TestStatus = "incomplete"
)

// Winner confidence grades.
const (
	WinnerConfidenceSignificant = 0.95
	WinnerConfidenceSampled     = 0.8
	WinnerConfidenceDefault     = 0.5
	WinnerSampleThreshold       = 30
)

// Winner names the best variant on the primary metric.
type Winner struct {
	VariantID  string  `json:"variant_id"`
	Confidence float64 `json:"confidence"`
}

// Insights are derived, human-facing takeaways.
type Insights struct {
	EstimatedSavings float64  `json:"estimated_savings"`
	Recommendations  []string `json:"recommendations"`
}

// ABTestResults is the analysis of a whole test.
type ABTestResults struct {
	Metric      abtest.Metric       `json:"metric"`
	Status      TestStatus          `json:"status"`
	Winner      *Winner             `json:"winner,omitempty"`
	Variants    []VariantMetrics    `json:"variants"`
	Comparisons []VariantComparison `json:"comparisons"`
	Insights    Insights            `json:"insights"`
}

// DetermineWinner compares every pair of variants and picks the best one on
// metric. The pairwise comparisons are also run on metric rather than on cost
// as CompareVariants does, so a quality or latency test reports significance
// for the metric it is decided on. Variants without samples are never chosen.
func (a Analyzer) DetermineWinner(variants []string, results []abtest.TestResult, metric abtest.Metric) ABTestResults {
	if !metric.Valid() {
		metric = abtest.MetricCost
	}
	out := ABTestResults{Metric: metric, Status: StatusIncomplete}

	byID := make(map[string]VariantMetrics, len(variants))
	for _, id := range variants {
		m := Aggregate(id, abtest.ResultsForVariant(results, id))
		byID[id] = m
		out.Variants = append(out.Variants, m)
	}

	anySignificant := false
	for i := 0; i < len(variants); i++ {
		for j := i + 1; j < len(variants); j++ {
			comparison := a.CompareVariantsOn(variants[i], variants[j], results, metric)
			if comparison.Significance.Significant {
				anySignificant = true
			}
			out.Comparisons = append(out.Comparisons, comparison)
		}
	}

	best := ""
	for _, id := range variants {
		m := byID[id]
		if m.TotalSamples == 0 {
			continue
		}
		if best == "" || better(m.Metric(metric), byID[best].Metric(metric), metric) {
			best = id
		}
	}

	total := 0
	for _, m := range out.Variants {
		total += m.TotalSamples
	}
	switch {
	case anySignificant:
		out.Status = StatusSignificant
	case len(variants) > 0 && total >= len(variants)*MinSamplesForRecommendation:
		out.Status = StatusInconclusive
	}

	if best != "" {
		winner := &Winner{VariantID: best, Confidence: WinnerConfidenceDefault}
		switch {
		case winnerSignificant(out.Comparisons, best):
			winner.Confidence = WinnerConfidenceSignificant
		case byID[best].TotalSamples >= WinnerSampleThreshold:
			winner.Confidence = WinnerConfidenceSampled
		}
		out.Winner = winner
	}
	out.Insights = insights(out, byID)
	return out
}

func winnerSignificant(comparisons []VariantComparison, winner string) bool {
	for _, c := range comparisons {
		if c.Involves(winner) && c.Significance.Significant {
			return true
		}
	}
	return false
}

// insights estimates what adopting the winner would have saved on the samples
// actually run by the other variants.
func insights(results ABTestResults, byID map[string]VariantMetrics) Insights {
	out := Insights{}
	if results.Winner == nil {
		out.Recommendations = []string{"collect more data: no variant has completed samples"}
		return out
	}
	winner := byID[results.Winner.VariantID]
	for _, m := range results.Variants {
		if m.VariantID == winner.VariantID || m.TotalSamples == 0 {
			continue
		}
		out.EstimatedSavings += (m.AverageCost - winner.AverageCost) * float64(m.TotalSamples)
	}

	switch results.Status {
	case StatusSignificant:
		out.Recommendations = append(out.Recommendations,
			fmt.Sprintf("deploy %s: it is significantly better on %s", winner.VariantID, results.Metric))
		if out.EstimatedSavings > 0 {
			out.Recommendations = append(out.Recommendations,
				fmt.Sprintf("adopting %s would have saved $%.6f over this test's volume", winner.VariantID, out.EstimatedSavings))
		}
		out.Recommendations = append(out.Recommendations, "monitor cost and latency after rollout")
	case StatusInconclusive:
		required := 0
		for _, c := range results.Comparisons {
			if c.Involves(winner.VariantID) && c.Significance.Power.RequiredSampleSize > required {
				required = c.Significance.Power.RequiredSampleSize
			}
		}
		out.Recommendations = append(out.Recommendations,
			fmt.Sprintf("%s leads but no difference is significant yet", winner.VariantID),
			fmt.Sprintf("continue collecting samples to about %d per variant", required))
	default:
		out.Recommendations = append(out.Recommendations,
			fmt.Sprintf("collect more data: at least %d samples per variant", MinSamplesForRecommendation))
	}
	return out
}

// AnySignificant reports whether any pair of variants differs significantly
// on metric. It is cheaper than DetermineWinner and skips aggregation.
func (a Analyzer) AnySignificant(variants []string, results []abtest.TestResult, metric abtest.Metric) bool {
	groups := make(map[string][]abtest.TestResult, len(variants))
	for _, id := range variants {
		groups[id] = abtest.ResultsForVariant(results, id)
	}
	for i := 0; i < len(variants); i++ {
		for j := i + 1; j < len(variants); j++ {
			if a.CalculateSignificance(groups[variants[i]], groups[variants[j]], metric).Significant {
				return true
			}
		}
	}
	return false
}
