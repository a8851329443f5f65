package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"promptab/internal/abtest"
)

const (
	// DefaultAlpha is the two-tailed significance threshold.
	DefaultAlpha = 0.05
	// DefaultPowerTarget is the conventional power for sample size planning.
	DefaultPowerTarget = 0.8
	// DefaultPowerReferenceSize caps the sample size used for achieved power.
	DefaultPowerReferenceSize = 100
	// MaxRequiredSampleSize bounds the required sample size when the effect is near zero.
	MaxRequiredSampleSize = 10000
	// MaxEffectSize bounds Cohen's d when the pooled deviation is zero.
	MaxEffectSize = 10.0
	// MinSamplesPerSide is the fewest samples a side needs for a t-test.
	MinSamplesPerSide = 2
)

// Interval is a confidence interval for the mean difference A-B.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Width returns Upper-Lower.
func (i Interval) Width() float64 {
	return i.Upper - i.Lower
}

// PowerAnalysis is an approximate power estimate. Achieved power uses a normal
// approximation on min(n1, n2) capped at the reference size, so it is a guide
// rather than an exact non-central t computation.
type PowerAnalysis struct {
	AchievedPower      float64 `json:"achieved_power"`
	RequiredSampleSize int     `json:"required_sample_size"`
	TargetPower        float64 `json:"target_power"`
}

// Result is the outcome of comparing two sample sets on one metric.
type Result struct {
	Metric             abtest.Metric `json:"metric"`
	Significant        bool          `json:"significant"`
	Insufficient       bool          `json:"insufficient"`
	ZeroVariance       bool          `json:"zero_variance,omitempty"`
	PValue             float64       `json:"p_value"`
	TStatistic         float64       `json:"t_statistic"`
	DegreesOfFreedom   float64       `json:"degrees_of_freedom"`
	MeanA              float64       `json:"mean_a"`
	MeanB              float64       `json:"mean_b"`
	ConfidenceInterval Interval      `json:"confidence_interval"`
	ConfidenceLevel    float64       `json:"confidence_level"`
	EffectSize         float64       `json:"effect_size"`
	SampleSizeA        int           `json:"sample_size_a"`
	SampleSizeB        int           `json:"sample_size_b"`
	Power              PowerAnalysis `json:"power"`
}

// Analyzer holds the statistical policy. The zero value uses the defaults.
// It is stateless and safe for concurrent use.
type Analyzer struct {
	Alpha              float64
	ConfidenceLevel    float64
	PowerTarget        float64
	PowerReferenceSize int
}

// New returns an Analyzer with the default policy at the given confidence level.
func New(confidenceLevel float64) Analyzer {
	return Analyzer{ConfidenceLevel: confidenceLevel}.withDefaults()
}

func (a Analyzer) withDefaults() Analyzer {
	if a.Alpha <= 0 || a.Alpha >= 1 {
		a.Alpha = DefaultAlpha
	}
	if a.ConfidenceLevel <= 0 || a.ConfidenceLevel >= 1 {
		a.ConfidenceLevel = abtest.DefaultConfidenceLevel
	}
	if a.PowerTarget <= 0 || a.PowerTarget >= 1 {
		a.PowerTarget = DefaultPowerTarget
	}
	if a.PowerReferenceSize <= 0 {
		a.PowerReferenceSize = DefaultPowerReferenceSize
	}
	return a
}

// Values extracts the metric from each result.
func Values(results []abtest.TestResult, metric abtest.Metric) []float64 {
	values := make([]float64, len(results))
	for i, result := range results {
		values[i] = result.MetricValue(metric)
	}
	return values
}

// CalculateSignificance runs Welch's t-test of A against B on metric. With
// fewer than two samples on either side it returns an insufficient result
// instead of failing.
func (a Analyzer) CalculateSignificance(samplesA, samplesB []abtest.TestResult, metric abtest.Metric) Result {
	result := a.CompareValues(Values(samplesA, metric), Values(samplesB, metric))
	result.Metric = metric
	return result
}

// CompareValues is CalculateSignificance on raw values.
func (a Analyzer) CompareValues(valuesA, valuesB []float64) Result {
	a = a.withDefaults()
	n1, n2 := len(valuesA), len(valuesB)
	result := Result{
		SampleSizeA:     n1,
		SampleSizeB:     n2,
		ConfidenceLevel: a.ConfidenceLevel,
		PValue:          1,
		Power:           PowerAnalysis{TargetPower: a.PowerTarget},
	}
	if n1 > 0 {
		result.MeanA = stat.Mean(valuesA, nil)
	}
	if n2 > 0 {
		result.MeanB = stat.Mean(valuesB, nil)
	}
	diff := result.MeanA - result.MeanB
	if n1 < MinSamplesPerSide || n2 < MinSamplesPerSide {
		result.Insufficient = true
		result.ConfidenceInterval = Interval{Lower: diff, Upper: diff}
		return result
	}

	var1 := stat.Variance(valuesA, nil)
	var2 := stat.Variance(valuesB, nil)
	fn1, fn2 := float64(n1), float64(n2)
	se := math.Sqrt(var1/fn1 + var2/fn2)

	if se == 0 {
		result.ZeroVariance = true
		result.DegreesOfFreedom = fn1 + fn2 - 2
		result.ConfidenceInterval = Interval{Lower: diff, Upper: diff}
		if diff == 0 {
			result.Power.RequiredSampleSize = MaxRequiredSampleSize
			return result
		}
		result.PValue = 0
		result.Significant = true
		result.EffectSize = math.Copysign(MaxEffectSize, diff)
		result.Power = a.power(n1, n2, result.EffectSize)
		return result
	}

	result.TStatistic = diff / se
	num := math.Pow(var1/fn1+var2/fn2, 2)
	denom := math.Pow(var1/fn1, 2)/(fn1-1) + math.Pow(var2/fn2, 2)/(fn2-1)
	result.DegreesOfFreedom = num / denom

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: result.DegreesOfFreedom}
	result.PValue = clamp01(2 * dist.CDF(-math.Abs(result.TStatistic)))
	result.Significant = result.PValue < a.Alpha

	critical := dist.Quantile(1 - (1-a.ConfidenceLevel)/2)
	result.ConfidenceInterval = Interval{Lower: diff - critical*se, Upper: diff + critical*se}

	result.EffectSize = cohensD(diff, var1, var2, fn1, fn2)
	result.Power = a.power(n1, n2, result.EffectSize)
	return result
}

// cohensD uses the pooled standard deviation, clamped to MaxEffectSize.
func cohensD(diff, var1, var2, n1, n2 float64) float64 {
	pooled := math.Sqrt(((n1-1)*var1 + (n2-1)*var2) / (n1 + n2 - 2))
	if pooled == 0 {
		if diff == 0 {
			return 0
		}
		return math.Copysign(MaxEffectSize, diff)
	}
	d := diff / pooled
	if math.Abs(d) > MaxEffectSize {
		return math.Copysign(MaxEffectSize, d)
	}
	return d
}

func (a Analyzer) power(n1, n2 int, effectSize float64) PowerAnalysis {
	n := n1
	if n2 < n {
		n = n2
	}
	if n > a.PowerReferenceSize {
		n = a.PowerReferenceSize
	}
	d := math.Abs(effectSize)
	zAlpha := distuv.UnitNormal.Quantile(1 - a.Alpha/2)
	ncp := d * math.Sqrt(float64(n)/2)
	return PowerAnalysis{
		AchievedPower:      clamp01(1 - distuv.UnitNormal.CDF(zAlpha-ncp)),
		RequiredSampleSize: a.RequiredSampleSize(effectSize),
		TargetPower:        a.PowerTarget,
	}
}

// RequiredSampleSize estimates the per-variant samples needed to reach the
// power target for an effect of the given size.
func (a Analyzer) RequiredSampleSize(effectSize float64) int {
	a = a.withDefaults()
	d := math.Abs(effectSize)
	if d < 1e-9 {
		return MaxRequiredSampleSize
	}
	zAlpha := distuv.UnitNormal.Quantile(1 - a.Alpha/2)
	zPower := distuv.UnitNormal.Quantile(a.PowerTarget)
	n := math.Ceil(2 * math.Pow((zAlpha+zPower)/d, 2))
	if n > MaxRequiredSampleSize {
		return MaxRequiredSampleSize
	}
	if n < MinSamplesPerSide {
		return MinSamplesPerSide
	}
	return int(n)
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
