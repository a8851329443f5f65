package abtest

// VariantLive is the running aggregate for one variant.
type VariantLive struct {
	AverageCost      float64 `json:"average_cost"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
	SampleCount      int     `json:"sample_count"`
}

// Add folds one successful sample into the running means.
func (v VariantLive) Add(cost, latencyMs float64) VariantLive {
	n := float64(v.SampleCount)
	v.AverageCost = (v.AverageCost*n + cost) / (n + 1)
	v.AverageLatencyMs = (v.AverageLatencyMs*n + latencyMs) / (n + 1)
	v.SampleCount++
	return v
}

// ExecutionProgress is a point-in-time view of a run. It is never stored.
type ExecutionProgress struct {
	TestID     string                 `json:"test_id"`
	Status     Status                 `json:"status"`
	Completed  int                    `json:"completed"`
	Failed     int                    `json:"failed"`
	Total      int                    `json:"total"`
	Percentage float64                `json:"percentage"`
	Variants   map[string]VariantLive `json:"variants"`
}

// Percent returns completed/total*100, or 0 for an empty plan.
func Percent(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(completed) / float64(total) * 100
}

// Clone returns a copy that shares no map with p.
func (p ExecutionProgress) Clone() ExecutionProgress {
	out := p
	out.Variants = make(map[string]VariantLive, len(p.Variants))
	for id, live := range p.Variants {
		out.Variants[id] = live
	}
	return out
}

// RebuildProgress recomputes progress from the stored results and errors.
// When total is zero the planned total of the test is used.
func RebuildProgress(test ABTest, total int) ExecutionProgress {
	if total <= 0 {
		_, total = PlanTotals(test)
	}
	progress := ExecutionProgress{
		TestID:   test.ID,
		Status:   test.Status,
		Failed:   len(test.Errors),
		Total:    total,
		Variants: make(map[string]VariantLive, len(test.Variants)),
	}
	for _, variant := range test.Variants {
		progress.Variants[variant.ID] = VariantLive{}
	}
	for _, result := range test.Results {
		live := progress.Variants[result.VariantID]
		progress.Variants[result.VariantID] = live.Add(result.MetricValue(MetricCost), result.MetricValue(MetricLatency))
		progress.Completed++
	}
	progress.Percentage = Percent(progress.Completed, progress.Total)
	return progress
}
