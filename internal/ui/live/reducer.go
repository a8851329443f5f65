package live

import (
	"fmt"

	"promptab/internal/abtest"
	"promptab/internal/runner"
)

// Reduce applies one event to the UI state.
func Reduce(state State, event Event) State {
	switch event.Kind {
	case EventRunStart:
		return startState(event)
	case EventSample:
		return applySample(state, event.Sample)
	case EventRunEnd:
		state.Status = event.Test.Status
		state.Finished = true
		state.LastEvent = formatRunEnd(event.Test.Status, event.Progress)
	}
	return state
}

// startState builds one row per variant with its planned sample count.
func startState(event Event) State {
	planned, _ := abtest.PlanTotals(event.Test)
	state := State{
		TestID:    event.Test.ID,
		Name:      event.Test.Name,
		Status:    abtest.StatusRunning,
		Total:     event.Total,
		StartedAt: event.At,
		Rows:      make([]VariantRow, 0, len(event.Test.Variants)),
	}
	for _, variant := range event.Test.Variants {
		state.Rows = append(state.Rows, VariantRow{
			ID:      variant.ID,
			Name:    variant.Name,
			Model:   variant.Model,
			Planned: planned[variant.ID],
		})
	}
	return state
}

// applySample folds a sample outcome into its variant row.
func applySample(state State, event runner.SampleEvent) State {
	index := rowIndex(state.Rows, event.Planned.VariantID)
	if index < 0 {
		state.Rows = append(state.Rows, VariantRow{ID: event.Planned.VariantID, Model: event.Model})
		index = len(state.Rows) - 1
	}
	rows := make([]VariantRow, len(state.Rows))
	copy(rows, state.Rows)
	row := rows[index]
	switch event.Outcome {
	case runner.SampleSucceeded:
		row.Succeeded++
		state.Completed++
	case runner.SampleFailed:
		row.Failed++
		state.Failed++
		if event.Error != nil {
			row.LastError = event.Error.Kind
		}
	case runner.SampleDropped:
		row.Dropped++
		state.Dropped++
	}
	if live, ok := event.Progress.Variants[row.ID]; ok {
		row.Succeeded = max(row.Succeeded, live.SampleCount)
		row.AverageCost = live.AverageCost
		row.AverageLatencyMs = live.AverageLatencyMs
	}
	// Progress snapshots also cover events the controller had to drop.
	state.Completed = max(state.Completed, event.Progress.Completed)
	state.Failed = max(state.Failed, event.Progress.Failed)
	rows[index] = row
	state.Rows = rows
	if message := formatLastEvent(event); message != "" {
		state.LastEvent = message
	}
	return state
}

func rowIndex(rows []VariantRow, id string) int {
	for i, row := range rows {
		if row.ID == id {
			return i
		}
	}
	return -1
}

// formatLastEvent creates a short footer message for the event.
func formatLastEvent(event runner.SampleEvent) string {
	label := fmt.Sprintf("%s #%d", event.Planned.VariantID, event.Planned.SampleIndex)
	switch event.Outcome {
	case runner.SampleFailed:
		if event.Error != nil {
			return fmt.Sprintf("%s failed (%s): %s", label, event.Error.Kind, event.Error.Message)
		}
		return label + " failed"
	case runner.SampleDropped:
		return label + " dropped"
	case runner.SampleSucceeded:
		if event.Result != nil {
			return fmt.Sprintf("%s done in %s for %s", label, formatDuration(event.Result.Latency), formatCost(event.Result.Cost.TotalCost))
		}
		return label + " done"
	}
	return ""
}

func formatRunEnd(status abtest.Status, progress abtest.ExecutionProgress) string {
	return fmt.Sprintf("run %s: %d completed, %d failed of %d", status, progress.Completed, progress.Failed, progress.Total)
}
