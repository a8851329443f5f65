package stats

import (
	"fmt"
	"math"
	"time"

	"promptab/internal/abtest"
)

// MinSamplesForRecommendation is the per-variant floor for naming a leader
// without significance.
const MinSamplesForRecommendation = 10

// Confidence grades a recommendation.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// EffectCategory buckets Cohen's d by the usual thresholds.
type EffectCategory string

const (
	EffectNegligible EffectCategory = "negligible"
	EffectSmall      EffectCategory = "small"
	EffectMedium     EffectCategory = "medium"
	EffectLarge      EffectCategory = "large"
)

// CategorizeEffect maps |d| onto 0.2 / 0.5 / 0.8 thresholds.
func CategorizeEffect(d float64) EffectCategory {
	d = math.Abs(d)
	switch {
	case d < 0.2:
		return EffectNegligible
	case d < 0.5:
		return EffectSmall
	case d < 0.8:
		return EffectMedium
	default:
		return EffectLarge
	}
}

// VariantMetrics aggregates one variant's successful samples.
type VariantMetrics struct {
	VariantID        string   `json:"variant_id"`
	TotalSamples     int      `json:"total_samples"`
	TotalCost        float64  `json:"total_cost"`
	AverageCost      float64  `json:"average_cost"`
	AverageLatencyMs float64  `json:"average_latency_ms"`
	AverageQuality   *float64 `json:"average_quality,omitempty"`
	CostEfficiency   float64  `json:"cost_efficiency"`
	PerformanceScore float64  `json:"performance_score"`
}

// Metric returns the aggregate the primary metric compares on.
func (m VariantMetrics) Metric(metric abtest.Metric) float64 {
	switch metric {
	case abtest.MetricLatency:
		return m.AverageLatencyMs
	case abtest.MetricQuality:
		if m.AverageQuality == nil {
			return abtest.DefaultQuality
		}
		return *m.AverageQuality
	default:
		return m.AverageCost
	}
}

// Aggregate computes VariantMetrics over results that already belong to one variant.
func Aggregate(variantID string, results []abtest.TestResult) VariantMetrics {
	metrics := VariantMetrics{VariantID: variantID, TotalSamples: len(results)}
	if len(results) == 0 {
		return metrics
	}
	var latency time.Duration
	var quality float64
	scored := 0
	for _, result := range results {
		metrics.TotalCost += result.Cost.TotalCost
		latency += result.Latency
		if result.Quality != nil {
			quality += *result.Quality
			scored++
		}
	}
	n := float64(len(results))
	metrics.AverageCost = metrics.TotalCost / n
	metrics.AverageLatencyMs = float64(latency) / float64(time.Millisecond) / n
	if scored > 0 {
		// unscored samples count at DefaultQuality, as in the significance test
		avg := (quality + float64(len(results)-scored)*abtest.DefaultQuality) / n
		metrics.AverageQuality = &avg
	}
	if metrics.AverageCost > 0 {
		metrics.CostEfficiency = 1 / metrics.AverageCost
	}
	metrics.PerformanceScore = performanceScore(metrics)
	return metrics
}

// performanceScore blends quality, cost and latency into [0,1]; higher is
// better. Cost is taken per thousand samples and latency in seconds.
func performanceScore(m VariantMetrics) float64 {
	quality := abtest.DefaultQuality
	if m.AverageQuality != nil {
		quality = *m.AverageQuality
	}
	costTerm := 1 / (1 + m.AverageCost*1000)
	latencyTerm := 1 / (1 + m.AverageLatencyMs/1000)
	return 0.5*clamp01(quality) + 0.25*costTerm + 0.25*latencyTerm
}

// Recommendation is the actionable verdict of one comparison.
type Recommendation struct {
	Winner     string     `json:"winner,omitempty"`
	Confidence Confidence `json:"confidence"`
	Reasoning  string     `json:"reasoning"`
	Action     string     `json:"action"`
}

// VariantComparison is the pairwise comparison of two variants.
type VariantComparison struct {
	VariantA       VariantMetrics `json:"variant_a"`
	VariantB       VariantMetrics `json:"variant_b"`
	Significance   Result         `json:"significance"`
	Effect         EffectCategory `json:"effect"`
	Recommendation Recommendation `json:"recommendation"`
}

// Involves reports whether the comparison includes variantID.
func (c VariantComparison) Involves(variantID string) bool {
	return c.VariantA.VariantID == variantID || c.VariantB.VariantID == variantID
}

// CompareVariants compares two variants on cost.
func (a Analyzer) CompareVariants(variantA, variantB string, results []abtest.TestResult) VariantComparison {
	return a.CompareVariantsOn(variantA, variantB, results, abtest.MetricCost)
}

// CompareVariantsOn compares two variants on the given metric.
func (a Analyzer) CompareVariantsOn(variantA, variantB string, results []abtest.TestResult, metric abtest.Metric) VariantComparison {
	samplesA := abtest.ResultsForVariant(results, variantA)
	samplesB := abtest.ResultsForVariant(results, variantB)
	significance := a.CalculateSignificance(samplesA, samplesB, metric)
	comparison := VariantComparison{
		VariantA:     Aggregate(variantA, samplesA),
		VariantB:     Aggregate(variantB, samplesB),
		Significance: significance,
		Effect:       CategorizeEffect(significance.EffectSize),
	}
	comparison.Recommendation = recommend(comparison, metric)
	return comparison
}

func recommend(c VariantComparison, metric abtest.Metric) Recommendation {
	leader := leading(c.VariantA, c.VariantB, metric)
	sig := c.Significance
	switch {
	case sig.Significant:
		return Recommendation{
			Winner:     leader,
			Confidence: ConfidenceHigh,
			Reasoning: fmt.Sprintf("%s is better on %s (p=%.4f, effect size %.2f, %s)",
				leader, metric, sig.PValue, sig.EffectSize, c.Effect),
			Action: fmt.Sprintf("deploy %s", leader),
		}
	case c.VariantA.TotalSamples >= MinSamplesForRecommendation && c.VariantB.TotalSamples >= MinSamplesForRecommendation:
		return Recommendation{
			Winner:     leader,
			Confidence: ConfidenceMedium,
			Reasoning: fmt.Sprintf("%s leads on %s but the difference is not significant (p=%.4f); samples are insufficient",
				leader, metric, sig.PValue),
			Action: fmt.Sprintf("continue collecting samples to about %d per variant", sig.Power.RequiredSampleSize),
		}
	default:
		return Recommendation{
			Confidence: ConfidenceLow,
			Reasoning: fmt.Sprintf("not enough data: %d and %d samples",
				c.VariantA.TotalSamples, c.VariantB.TotalSamples),
			Action: fmt.Sprintf("collect more data: at least %d samples per variant", MinSamplesForRecommendation),
		}
	}
}

// leading returns the better variant by metric direction; A wins ties.
func leading(a, b VariantMetrics, metric abtest.Metric) string {
	if better(b.Metric(metric), a.Metric(metric), metric) {
		return b.VariantID
	}
	return a.VariantID
}

// better reports whether x strictly beats y on metric.
func better(x, y float64, metric abtest.Metric) bool {
	if metric.LowerIsBetter() {
		return x < y
	}
	return x > y
}
