package live

import (
	"time"

	"promptab/internal/abtest"
)

// VariantRow holds UI state for one variant.
type VariantRow struct {
	ID               string
	Name             string
	Model            string
	Planned          int
	Succeeded        int
	Failed           int
	Dropped          int
	AverageCost      float64
	AverageLatencyMs float64
	LastError        string
}

// Settled counts samples that will not run again.
func (r VariantRow) Settled() int {
	return r.Succeeded + r.Failed + r.Dropped
}

// State captures the live UI state for one test run.
type State struct {
	TestID    string
	Name      string
	Status    abtest.Status
	Total     int
	Completed int
	Failed    int
	Dropped   int
	StartedAt time.Time
	LastEvent string
	Rows      []VariantRow
	Finished  bool
}

// Settled counts samples across all variants that reached an outcome.
func (s State) Settled() int {
	return s.Completed + s.Failed + s.Dropped
}
