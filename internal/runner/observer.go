package runner

import (
	"promptab/internal/abtest"
)

// SampleOutcome classifies how a planned sample ended.
type SampleOutcome string

const (
	// SampleSucceeded marks a sample that produced a TestResult.
	SampleSucceeded SampleOutcome = "succeeded"
	// SampleFailed marks a sample recorded as a SampleError.
	SampleFailed SampleOutcome = "failed"
	// SampleDropped marks a sample discarded by a stop before dispatch.
	SampleDropped SampleOutcome = "dropped"
)

// SampleEvent reports the end of one planned sample.
type SampleEvent struct {
	TestID   string
	Planned  abtest.PlannedSample
	Model    string
	Outcome  SampleOutcome
	Result   *abtest.TestResult
	Error    *abtest.SampleError
	Progress abtest.ExecutionProgress
}

// Observer receives run lifecycle events for UI, metrics or logging.
// Callbacks run on worker goroutines and must not block for long.
type Observer interface {
	// OnRunStart signals that a test entered running with total planned samples.
	OnRunStart(test abtest.ABTest, total int)
	// OnSample delivers the end of one sample.
	OnSample(event SampleEvent)
	// OnRunEnd signals that the test reached a terminal status.
	OnRunEnd(test abtest.ABTest, progress abtest.ExecutionProgress)
}

// Observers fans events out to every non-nil observer in order.
type Observers []Observer

func (o Observers) OnRunStart(test abtest.ABTest, total int) {
	for _, observer := range o {
		if observer != nil {
			observer.OnRunStart(test, total)
		}
	}
}

func (o Observers) OnSample(event SampleEvent) {
	for _, observer := range o {
		if observer != nil {
			observer.OnSample(event)
		}
	}
}

func (o Observers) OnRunEnd(test abtest.ABTest, progress abtest.ExecutionProgress) {
	for _, observer := range o {
		if observer != nil {
			observer.OnRunEnd(test, progress)
		}
	}
}

type nopObserver struct{}

func (nopObserver) OnRunStart(abtest.ABTest, int) {}
func (nopObserver) OnSample(SampleEvent) {}
func (nopObserver) OnRunEnd(abtest.ABTest, abtest.ExecutionProgress) {}
