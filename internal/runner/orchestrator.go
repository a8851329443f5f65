package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"promptab/internal/abtest"
	"promptab/internal/stats"
	"promptab/internal/store"
	"promptab/internal/tracing"
	"promptab/pkg/dispatch"
)

const (
	// DefaultWorkers is the in-flight generation cap when none is configured.
	DefaultWorkers = 4
	// DefaultStopGrace bounds how long in-flight samples may run after a stop.
	DefaultStopGrace = 30 * time.Second
	// SpanRun is the span name recorded when a run ends.
	SpanRun = "ab_test.run"
)

// Completion is delivered to OnComplete once a test reaches a terminal status.
type Completion struct {
	Test     abtest.ABTest
	Progress abtest.ExecutionProgress
	Analysis stats.ABTestResults
	Reason   string
}

// Options configures an Orchestrator. Store and Runner are required.
type Options struct {
	Store  store.Store
	Runner *SampleRunner
	// Workers caps concurrent generation calls across every running test.
	// Defaults to DefaultWorkers.
	Workers int
	// DispatchSpacing is the minimum gap between two dispatches to the same
	// provider:model target.
	DispatchSpacing time.Duration
	// StopGrace bounds in-flight work after a stop or timeout.
	StopGrace  time.Duration
	Tracer     tracing.Sink
	Logger     *slog.Logger
	Observer   Observer
	OnComplete func(ctx context.Context, completion Completion)
	Analyzer   stats.Analyzer
	Now        func() time.Time
}

// Results is the stored test together with its analysis.
type Results struct {
	Test     abtest.ABTest            `json:"test"`
	Progress abtest.ExecutionProgress `json:"progress"`
	Analysis stats.ABTestResults      `json:"analysis"`
}

// Orchestrator runs A/B tests against a store. It is safe for concurrent use.
type Orchestrator struct {
	store      store.Store
	runner     *SampleRunner
	workers    int
	spacing    time.Duration
	stopGrace  time.Duration
	tracer     tracing.Sink
	logger     *slog.Logger
	observer   Observer
	onComplete func(ctx context.Context, completion Completion)
	analyzer   stats.Analyzer
	now        func() time.Time
	sched      *dispatch.Scheduler

	mu   sync.Mutex
	runs map[string]*run
}

// New validates options and applies defaults.
func New(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Runner == nil || opts.Runner.Generator == nil || opts.Runner.Pricing == nil {
		return nil, fmt.Errorf("sample runner with generator and pricing is required")
	}
	o := &Orchestrator{
		store:      opts.Store,
		runner:     opts.Runner,
		workers:    opts.Workers,
		spacing:    opts.DispatchSpacing,
		stopGrace:  opts.StopGrace,
		tracer:     opts.Tracer,
		logger:     opts.Logger,
		observer:   opts.Observer,
		onComplete: opts.OnComplete,
		analyzer:   opts.Analyzer,
		now:        opts.Now,
		runs:       map[string]*run{},
	}
	if o.workers <= 0 {
		o.workers = DefaultWorkers
	}
	if o.stopGrace <= 0 {
		o.stopGrace = DefaultStopGrace
	}
	if o.tracer == nil {
		o.tracer = tracing.Nop{}
	}
	if o.runner.Tracer == nil {
		o.runner.Tracer = o.tracer
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.runner.Now == nil {
		o.runner.Now = o.now
	}
	o.sched = dispatch.New(o.workers, o.spacing)
	return o, nil
}

// Close stops every running test and shuts down the shared dispatcher. Tests
// still running are finalized as stopped; Close waits for that or for ctx.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	runs := make([]*run, 0, len(o.runs))
	for _, r := range o.runs {
		runs = append(runs, r)
	}
	o.mu.Unlock()
	for _, r := range runs {
		r.requestStop(reasonRequested)
	}
	for _, r := range runs {
		select {
		case <-r.done:
		case <-ctx.Done():
			_ = o.sched.Shutdown(ctx)
			return ctx.Err()
		}
	}
	return o.sched.Shutdown(ctx)
}

// Start validates a draft test, moves it to running and launches its samples
// in the background. Validation and lookup failures leave the test untouched.
func (o *Orchestrator) Start(ctx context.Context, testID string) (abtest.ABTest, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if existing, ok := o.runs[testID]; ok && !existing.finished() {
		return abtest.ABTest{}, &abtest.InvalidStateError{TestID: testID, Status: abtest.StatusRunning, Op: "start"}
	}
	test, err := o.store.GetTest(ctx, testID)
	if err != nil {
		return abtest.ABTest{}, err
	}
	if test.Status != abtest.StatusDraft {
		return abtest.ABTest{}, &abtest.InvalidStateError{TestID: testID, Status: test.Status, Op: "start"}
	}
	test.Config = test.Config.WithDefaults(len(test.Variants))
	if err := abtest.Validate(test); err != nil {
		return abtest.ABTest{}, err
	}
	if err := o.resolve(ctx, &test); err != nil {
		return abtest.ABTest{}, err
	}
	if err := o.store.PutTest(ctx, test); err != nil {
		return abtest.ABTest{}, fmt.Errorf("store test definition: %w", err)
	}
	running, err := o.store.UpdateTestStatus(ctx, testID, abtest.StatusRunning, o.now())
	if err != nil {
		return abtest.ABTest{}, err
	}

	runCtx := context.WithoutCancel(ctx)
	sampleCtx, cancelSamples := context.WithCancel(runCtx)
	r := newRun(running, o.sched, cancelSamples)
	o.runs[testID] = r
	go o.execute(runCtx, sampleCtx, r)
	return running, nil
}

// resolve replaces the embedded variant and input copies with the stored
// definitions so every reference is known to exist.
func (o *Orchestrator) resolve(ctx context.Context, test *abtest.ABTest) error {
	for i, variant := range test.Variants {
		stored, err := o.store.GetVariant(ctx, variant.ID)
		if err != nil {
			return err
		}
		test.Variants[i] = stored
	}
	for i, input := range test.Inputs {
		stored, err := o.store.GetInput(ctx, input.ID)
		if err != nil {
			return err
		}
		test.Inputs[i] = stored
	}
	return nil
}

// Stop halts dispatch for a running test, waits for in-flight samples and
// returns the stopped test. ctx bounds only the wait.
func (o *Orchestrator) Stop(ctx context.Context, testID string) (abtest.ABTest, error) {
	r := o.lookup(testID)
	if r == nil || r.finished() {
		test, err := o.store.GetTest(ctx, testID)
		if err != nil {
			return abtest.ABTest{}, err
		}
		return abtest.ABTest{}, &abtest.InvalidStateError{TestID: testID, Status: test.Status, Op: "stop"}
	}
	r.requestStop(reasonRequested)
	select {
	case <-r.done:
		return r.outcome()
	case <-ctx.Done():
		return abtest.ABTest{}, ctx.Err()
	}
}

// GetExecutionStatus returns the live progress of a test held in memory, or
// progress rebuilt from its stored samples.
func (o *Orchestrator) GetExecutionStatus(ctx context.Context, testID string) (abtest.ExecutionProgress, error) {
	if r := o.lookup(testID); r != nil {
		return r.snapshot(), nil
	}
	test, err := o.store.GetTest(ctx, testID)
	if err != nil {
		return abtest.ExecutionProgress{}, err
	}
	return abtest.RebuildProgress(test, 0), nil
}

// GetResults analyzes the stored samples of a test on its primary metric.
func (o *Orchestrator) GetResults(ctx context.Context, testID string) (Results, error) {
	test, err := o.store.GetTest(ctx, testID)
	if err != nil {
		return Results{}, err
	}
	progress := abtest.RebuildProgress(test, 0)
	if r := o.lookup(testID); r != nil {
		progress = r.snapshot()
	}
	return Results{
		Test:     test,
		Progress: progress,
		Analysis: o.analyze(test, test.Results),
	}, nil
}

// Wait blocks until the test held in memory finishes, then returns its
// terminal state. Tests not started by this orchestrator are read from the store.
func (o *Orchestrator) Wait(ctx context.Context, testID string) (abtest.ABTest, error) {
	r := o.lookup(testID)
	if r == nil {
		return o.store.GetTest(ctx, testID)
	}
	select {
	case <-r.done:
		return r.outcome()
	case <-ctx.Done():
		return abtest.ABTest{}, ctx.Err()
	}
}

// Done returns a channel closed when the test's run ends. It is already closed
// for tests this orchestrator is not running.
func (o *Orchestrator) Done(testID string) <-chan struct{} {
	if r := o.lookup(testID); r != nil {
		return r.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

func (o *Orchestrator) lookup(testID string) *run {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runs[testID]
}

func (o *Orchestrator) analyze(test abtest.ABTest, results []abtest.TestResult) stats.ABTestResults {
	return AnalyzeWith(o.analyzer, test, results)
}

// Analyze builds Results for a stored test without running anything.
func Analyze(analyzer stats.Analyzer, test abtest.ABTest) Results {
	return Results{
		Test:     test,
		Progress: abtest.RebuildProgress(test, 0),
		Analysis: AnalyzeWith(analyzer, test, test.Results),
	}
}

// AnalyzeWith runs the winner analysis on results using the test's confidence
// level and primary metric.
func AnalyzeWith(analyzer stats.Analyzer, test abtest.ABTest, results []abtest.TestResult) stats.ABTestResults {
	if test.Config.ConfidenceLevel > 0 {
		analyzer.ConfidenceLevel = test.Config.ConfidenceLevel
	}
	metric := test.Config.PrimaryMetric
	if metric == "" {
		metric = abtest.MetricCost
	}
	return analyzer.DetermineWinner(test.VariantIDs(), results, metric)
}

// execute drives one run: it submits the plan, collects one event per planned
// sample and then records the terminal status.
func (o *Orchestrator) execute(ctx, sampleCtx context.Context, r *run) {
	test := r.test
	o.logger.Info("ab test started",
		"test_id", test.ID,
		"variants", len(test.Variants),
		"planned_samples", len(r.plan),
		"workers", o.workers)
	o.observer.OnRunStart(test, len(r.plan))

	go o.submit(ctx, sampleCtx, r)

	var deadline <-chan time.Time
	if test.Config.MaxDuration > 0 {
		timer := time.NewTimer(test.Config.MaxDuration)
		defer timer.Stop()
		deadline = timer.C
	}
	var grace <-chan time.Time
	stopCh := r.stopCh
	var graceTimer *time.Timer
	startGrace := func() {
		stopCh = nil
		graceTimer = time.NewTimer(o.stopGrace)
		grace = graceTimer.C
	}

	for settled := 0; settled < len(r.plan); {
		select {
		case event := <-r.events:
			settled++
			if stopCh != nil && o.shouldStopEarly(r, event) {
				o.logger.Info("ab test reached significance", "test_id", test.ID, "completed", event.Progress.Completed)
				r.requestStop(reasonSignificant)
			}
		case <-stopCh:
			startGrace()
		case <-deadline:
			deadline = nil
			o.logger.Warn("ab test hit max duration", "test_id", test.ID, "max_duration", test.Config.MaxDuration)
			r.requestStop(reasonTimeout)
		case <-grace:
			grace = nil
			o.logger.Warn("cancelling in-flight samples after stop grace", "test_id", test.ID)
			r.cancelSamples()
		}
	}
	if graceTimer != nil {
		graceTimer.Stop()
	}
	r.settle()
	r.cancelSamples()

	o.finalize(ctx, r)
}

// submit hands every planned sample to the scheduler. Submissions after a
// stop come back through OnDrop.
func (o *Orchestrator) submit(ctx, sampleCtx context.Context, r *run) {
	for _, planned := range r.plan {
		planned := planned
		variant := r.variants[planned.VariantID]
		r.sched.Submit(dispatch.Job{
			ID:     fmt.Sprintf("%s/%s/%d", r.test.ID, planned.VariantID, planned.SampleIndex),
			Group:  r.test.ID,
			Target: variant.Provider + ":" + variant.Model,
			Run: func(context.Context) {
				r.events <- o.runSample(ctx, sampleCtx, r, planned)
			},
			OnDrop: func() {
				event := r.recordDrop(planned)
				o.observer.OnSample(event)
				r.events <- event
			},
		})
	}
}

// runSample executes one planned sample and records exactly one outcome.
// Generation runs under sampleCtx, which the stop grace cancels; the outcome
// is stored under ctx so a cancelled sample is still recorded.
func (o *Orchestrator) runSample(ctx, sampleCtx context.Context, r *run, planned abtest.PlannedSample) SampleEvent {
	result, err := o.runner.Run(sampleCtx, Sample{
		TestID:      r.test.ID,
		Variant:     r.variants[planned.VariantID],
		Input:       r.inputs[planned.InputID],
		SampleIndex: planned.SampleIndex,
		Context:     tracing.ContextABTest,
	})
	if err == nil {
		if appendErr := o.store.AppendResult(ctx, r.test.ID, result); appendErr != nil {
			err = &abtest.BackendError{
				TestID:      r.test.ID,
				VariantID:   planned.VariantID,
				InputID:     planned.InputID,
				SampleIndex: planned.SampleIndex,
				Kind:        KindStore,
				Err:         appendErr,
			}
		}
	}
	if err != nil {
		sampleErr := sampleErrorFor(r.test.ID, planned, err)
		sampleErr.At = o.now()
		if appendErr := o.store.AppendError(ctx, r.test.ID, sampleErr); appendErr != nil {
			o.logger.Error("record sample error", "test_id", r.test.ID, "error", appendErr)
		}
		o.logger.Warn("sample failed",
			"test_id", r.test.ID,
			"variant_id", planned.VariantID,
			"input_id", planned.InputID,
			"sample_index", planned.SampleIndex,
			"kind", sampleErr.Kind,
			"error", sampleErr.Message)
		event := r.recordFailure(planned, sampleErr)
		o.observer.OnSample(event)
		return event
	}
	event := r.recordSuccess(planned, result)
	o.observer.OnSample(event)
	return event
}

func sampleErrorFor(testID string, planned abtest.PlannedSample, err error) abtest.SampleError {
	var backendErr *abtest.BackendError
	if errors.As(err, &backendErr) {
		return backendErr.SampleError()
	}
	return abtest.SampleError{
		TestID:      testID,
		VariantID:   planned.VariantID,
		InputID:     planned.InputID,
		SampleIndex: planned.SampleIndex,
		Kind:        "unknown",
		Message:     err.Error(),
	}
}

// shouldStopEarly reports whether the run may end on a significant result.
func (o *Orchestrator) shouldStopEarly(r *run, event SampleEvent) bool {
	if !r.test.Config.StopOnSignificance || event.Outcome != SampleSucceeded {
		return false
	}
	if minSuccesses(event.Progress) < stats.MinSamplesForRecommendation {
		return false
	}
	analyzer := o.analyzer
	analyzer.ConfidenceLevel = r.test.Config.ConfidenceLevel
	return analyzer.AnySignificant(r.test.VariantIDs(), r.acceptedResults(), r.test.Config.PrimaryMetric)
}

// finalStatus applies the terminal status policy to a settled run.
func finalStatus(reason stopReason, completed, dropped int) abtest.Status {
	switch {
	case reason == reasonRequested:
		return abtest.StatusStopped
	case reason == reasonTimeout && dropped > 0:
		return abtest.StatusStopped
	case completed == 0:
		return abtest.StatusFailed
	default:
		return abtest.StatusCompleted
	}
}

func (o *Orchestrator) finalize(ctx context.Context, r *run) {
	reason := r.currentReason()
	status := finalStatus(reason, r.snapshot().Completed, r.droppedCount())

	final, err := o.store.UpdateTestStatus(ctx, r.test.ID, status, o.now())
	if err != nil {
		o.logger.Error("record final status", "test_id", r.test.ID, "status", status, "error", err)
		final = r.test
		final.Status = status
	}
	r.setStatus(status)
	progress := r.snapshot()

	o.logger.Info("ab test finished",
		"test_id", r.test.ID,
		"status", status,
		"reason", reason.String(),
		"completed", progress.Completed,
		"failed", progress.Failed,
		"total", progress.Total)
	o.tracer.RecordSpan(ctx, SpanRun, map[string]any{
		tracing.AttrTestID: r.test.ID,
		"status":           string(status),
		"reason":           reason.String(),
		"completed":        progress.Completed,
		"failed":           progress.Failed,
		"total":            progress.Total,
		"duration":         final.Elapsed(o.now()),
	})
	o.observer.OnRunEnd(final, progress)
	if o.onComplete != nil {
		o.onComplete(ctx, Completion{
			Test:     final,
			Progress: progress,
			Analysis: o.analyze(final, r.acceptedResults()),
			Reason:   reason.String(),
		})
	}
	r.finish(final, err)
}
