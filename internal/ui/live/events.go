package live

import (
	"time"

	"promptab/internal/abtest"
	"promptab/internal/runner"
)

// EventKind identifies the type of live UI event.
type EventKind int

const (
	// EventRunStart signals the start of a run.
	EventRunStart EventKind = iota
	// EventSample delivers the outcome of one planned sample.
	EventSample
	// EventRunEnd signals run completion.
	EventRunEnd
)

// Event carries a UI update payload.
type Event struct {
	Kind     EventKind
	Test     abtest.ABTest
	Total    int
	Sample   runner.SampleEvent
	Progress abtest.ExecutionProgress
	At       time.Time
}
