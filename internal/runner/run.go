package runner

import (
	"context"
	"sync"

	"promptab/internal/abtest"
	"promptab/pkg/dispatch"
)

// stopReason records why dispatch ended before the plan ran out.
type stopReason int

const (
	reasonNone stopReason = iota
	reasonRequested
	reasonTimeout
	reasonSignificant
)

func (r stopReason) String() string {
	switch r {
	case reasonRequested:
		return "stop_requested"
	case reasonTimeout:
		return "max_duration"
	case reasonSignificant:
		return "significant"
	default:
		return "plan_exhausted"
	}
}

// run is the in-memory state of one executing test. mu guards the live
// progress, the accepted results and the stop reason; every sample folds
// into them as a single critical section.
type run struct {
	test     abtest.ABTest
	plan     []abtest.PlannedSample
	variants map[string]abtest.PromptVariant
	inputs   map[string]abtest.TestInput
	sched    *dispatch.Scheduler

	// cancelSamples aborts in-flight generation calls once the stop grace
	// period runs out.
	cancelSamples context.CancelFunc

	events   chan SampleEvent
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu       sync.Mutex
	progress abtest.ExecutionProgress
	results  []abtest.TestResult
	dropped  int
	reason   stopReason

	final    abtest.ABTest
	finalErr error
}

func newRun(test abtest.ABTest, sched *dispatch.Scheduler, cancelSamples context.CancelFunc) *run {
	plan := abtest.Plan(test)
	r := &run{
		test:          test,
		plan:          plan,
		variants:      make(map[string]abtest.PromptVariant, len(test.Variants)),
		inputs:        make(map[string]abtest.TestInput, len(test.Inputs)),
		sched:         sched,
		cancelSamples: cancelSamples,
		events:        make(chan SampleEvent, len(plan)),
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
		progress: abtest.ExecutionProgress{
			TestID:   test.ID,
			Status:   abtest.StatusRunning,
			Total:    len(plan),
			Variants: make(map[string]abtest.VariantLive, len(test.Variants)),
		},
	}
	for _, variant := range test.Variants {
		r.variants[variant.ID] = variant
		r.progress.Variants[variant.ID] = abtest.VariantLive{}
	}
	for _, input := range test.Inputs {
		r.inputs[input.ID] = input
	}
	return r
}

// recordSuccess folds a result into the live metrics and returns the event.
func (r *run) recordSuccess(planned abtest.PlannedSample, result abtest.TestResult) SampleEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	live := r.progress.Variants[result.VariantID]
	r.progress.Variants[result.VariantID] = live.Add(result.MetricValue(abtest.MetricCost), result.MetricValue(abtest.MetricLatency))
	r.progress.Completed++
	r.progress.Percentage = abtest.Percent(r.progress.Completed, r.progress.Total)
	r.results = append(r.results, result)
	return SampleEvent{
		TestID:   r.test.ID,
		Planned:  planned,
		Model:    result.Model,
		Outcome:  SampleSucceeded,
		Result:   &result,
		Progress: r.progress.Clone(),
	}
}

func (r *run) recordFailure(planned abtest.PlannedSample, sampleErr abtest.SampleError) SampleEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Failed++
	return SampleEvent{
		TestID:   r.test.ID,
		Planned:  planned,
		Model:    r.variants[planned.VariantID].Model,
		Outcome:  SampleFailed,
		Error:    &sampleErr,
		Progress: r.progress.Clone(),
	}
}

func (r *run) recordDrop(planned abtest.PlannedSample) SampleEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped++
	return SampleEvent{
		TestID:   r.test.ID,
		Planned:  planned,
		Model:    r.variants[planned.VariantID].Model,
		Outcome:  SampleDropped,
		Progress: r.progress.Clone(),
	}
}

func (r *run) snapshot() abtest.ExecutionProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress.Clone()
}

func (r *run) acceptedResults() []abtest.TestResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]abtest.TestResult(nil), r.results...)
}

// requestStop records the first stop reason and halts dispatch. It is safe to
// call from any goroutine and more than once.
func (r *run) requestStop(reason stopReason) {
	r.mu.Lock()
	if r.reason == reasonNone {
		r.reason = reason
	}
	r.mu.Unlock()
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.sched.Cancel(r.test.ID)
	})
}

// settle marks every planned sample as accounted for. Later stop requests no
// longer touch the shared dispatcher, and the test's group is released there.
func (r *run) settle() {
	r.stopOnce.Do(func() {})
	r.sched.Release(r.test.ID)
}

func (r *run) currentReason() stopReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason
}

func (r *run) droppedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *run) setStatus(status abtest.Status) {
	r.mu.Lock()
	r.progress.Status = status
	r.mu.Unlock()
}

// finish publishes the terminal test. Called once by the executing goroutine.
func (r *run) finish(test abtest.ABTest, err error) {
	r.mu.Lock()
	r.final = test
	r.finalErr = err
	r.mu.Unlock()
	close(r.done)
}

func (r *run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *run) outcome() (abtest.ABTest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.final, r.finalErr
}

// minSuccesses returns the smallest per-variant success count.
func minSuccesses(progress abtest.ExecutionProgress) int {
	first := true
	lowest := 0
	for _, live := range progress.Variants {
		if first || live.SampleCount < lowest {
			lowest = live.SampleCount
			first = false
		}
	}
	return lowest
}
