package abtest

import (
	"math"
	"time"
)

const (
	// DefaultConfidenceLevel applies when a configuration leaves it unset.
	DefaultConfidenceLevel = 0.95
	// DefaultMinSampleSize applies when a configuration leaves it unset.
	DefaultMinSampleSize = 20
)

// planEpsilon absorbs float noise in m*split/100 before rounding up.
const planEpsilon = 1e-9

// PlannedSample is one unit of work in the sampling plan.
type PlannedSample struct {
	VariantIndex int
	VariantID    string
	InputIndex   int
	InputID      string
	SampleIndex  int
}

// WithDefaults fills unset policy fields. An empty traffic split becomes an
// even split across variantCount variants.
func (c Configuration) WithDefaults(variantCount int) Configuration {
	if c.MinSampleSize == 0 {
		c.MinSampleSize = DefaultMinSampleSize
	}
	if c.ConfidenceLevel == 0 {
		c.ConfidenceLevel = DefaultConfidenceLevel
	}
	if c.PrimaryMetric == "" {
		c.PrimaryMetric = MetricCost
	}
	if len(c.TrafficSplit) == 0 && variantCount > 0 {
		c.TrafficSplit = EvenSplit(variantCount)
	}
	return c
}

// EvenSplit divides 100 across n variants.
func EvenSplit(n int) []float64 {
	if n <= 0 {
		return nil
	}
	split := make([]float64, n)
	for i := range split {
		split[i] = 100 / float64(n)
	}
	return split
}

// TargetSamples returns ceil(minSampleSize*split/100), capped by the max
// sample size when one is set.
func TargetSamples(cfg Configuration, split float64) int {
	target := int(math.Ceil(float64(cfg.MinSampleSize)*split/100 - planEpsilon))
	if target < 0 {
		target = 0
	}
	if cfg.MaxSampleSize > 0 && target > cfg.MaxSampleSize {
		target = cfg.MaxSampleSize
	}
	return target
}

// PlanTotals returns the planned sample count per variant id and the total.
func PlanTotals(test ABTest) (map[string]int, int) {
	counts := make(map[string]int, len(test.Variants))
	total := 0
	for i, variant := range test.Variants {
		split := 0.0
		if i < len(test.Config.TrafficSplit) {
			split = test.Config.TrafficSplit[i]
		}
		n := TargetSamples(test.Config, split)
		counts[variant.ID] = n
		total += n
	}
	return counts, total
}

// Plan lays out every sample. Each variant cycles through the inputs in the
// same order so comparisons stay paired where the counts allow it. Samples are
// interleaved across variants so an early stop leaves the variants balanced.
func Plan(test ABTest) []PlannedSample {
	if len(test.Inputs) == 0 {
		return nil
	}
	counts, total := PlanTotals(test)
	plan := make([]PlannedSample, 0, total)
	for sampleIndex := 0; len(plan) < total; sampleIndex++ {
		for variantIndex, variant := range test.Variants {
			if sampleIndex >= counts[variant.ID] {
				continue
			}
			inputIndex := sampleIndex % len(test.Inputs)
			plan = append(plan, PlannedSample{
				VariantIndex: variantIndex,
				VariantID:    variant.ID,
				InputIndex:   inputIndex,
				InputID:      test.Inputs[inputIndex].ID,
				SampleIndex:  sampleIndex,
			})
		}
	}
	return plan
}

// Elapsed returns how long the test has been running, or ran.
func (t ABTest) Elapsed(now time.Time) time.Duration {
	if t.StartedAt.IsZero() {
		return 0
	}
	if !t.FinishedAt.IsZero() {
		return t.FinishedAt.Sub(t.StartedAt)
	}
	return now.Sub(t.StartedAt)
}
