// Package dispatch runs jobs on a fixed worker pool with per-target spacing.
package dispatch

import (
	"context"
	"sync"
	"time"
)

// Job is one unit of work bound to a target such as provider:model.
type Job struct {
	ID     string
	Target string
	// Group ties jobs together for Cancel, such as every sample of one run.
	Group string

	// Run executes the job. ctx is cancelled when Shutdown gives up waiting.
	Run func(ctx context.Context)
	// OnDrop is called instead of Run when the job is discarded by Stop.
	OnDrop func()
}

// Scheduler dispatches jobs to at most workers concurrent goroutines, round
// robin across targets, with a minimum spacing between two dispatches of the
// same target.
type Scheduler struct {
	workers  int
	spacing  time.Duration
	observer Observer

	submitCh   chan Job
	groupCh    chan groupRequest
	workCh     chan Job
	finishedCh chan struct{}
	stopCh     chan struct{}
	loopDone   chan struct{}
	doneCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup

	// gate orders Stop and Cancel against Submit and worker admission. Once
	// they return nothing new is accepted and no queued job is admitted to a
	// worker. A job admitted just before may still be entering Run.
	gate      sync.RWMutex
	stopped   bool
	cancelled map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc

	state *schedulerState

	now          func() time.Time
	idleInterval time.Duration
}

// New creates a Scheduler. spacing <= 0 disables per-target spacing.
func New(workers int, spacing time.Duration) *Scheduler {
	cfg := defaultSchedulerConfig()
	cfg.spacing = spacing
	return newScheduler(workers, cfg)
}

// NewWithObserver creates a Scheduler that reports dispatch and drop events.
func NewWithObserver(workers int, spacing time.Duration, observer Observer) *Scheduler {
	cfg := defaultSchedulerConfig()
	cfg.spacing = spacing
	cfg.observer = observer
	return newScheduler(workers, cfg)
}

// Submit enqueues a job. It returns false, after calling OnDrop, when the
// scheduler is already stopped.
func (s *Scheduler) Submit(job Job) bool {
	s.gate.RLock()
	defer s.gate.RUnlock()
	if s.rejects(job) {
		s.drop(job)
		return false
	}
	s.submitCh <- job
	return true
}

// Stop prevents any further dispatch. Queued jobs are dropped. Jobs already
// running are left to finish.
func (s *Scheduler) Stop() {
	s.gate.Lock()
	s.stopped = true
	s.gate.Unlock()
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.loopDone
}

// Cancel drops every queued job of group and rejects later submissions to it.
// Running jobs of the group finish normally and other groups are unaffected.
func (s *Scheduler) Cancel(group string) {
	s.gate.Lock()
	s.cancelled[group] = struct{}{}
	s.gate.Unlock()
	s.request(groupRequest{group: group})
}

// Release forgets a cancelled group so its name may be used again.
func (s *Scheduler) Release(group string) {
	s.gate.Lock()
	delete(s.cancelled, group)
	s.gate.Unlock()
	s.request(groupRequest{group: group, release: true})
}

// request hands a group change to the loop and waits until it is applied.
func (s *Scheduler) request(req groupRequest) {
	req.done = make(chan struct{})
	select {
	case s.groupCh <- req:
		<-req.done
	case <-s.loopDone:
	}
}

// rejects reports whether job may no longer run. Callers hold gate.
func (s *Scheduler) rejects(job Job) bool {
	if s.stopped {
		return true
	}
	_, cancelled := s.cancelled[job.Group]
	return cancelled
}

// Shutdown stops the scheduler and waits for running jobs. When ctx ends
// first, running jobs see their context cancelled.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.Stop()
	select {
	case <-s.doneCh:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// Done is closed once the scheduler is stopped and every worker has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.doneCh
}

// Workers returns the concurrency cap.
func (s *Scheduler) Workers() int {
	return s.workers
}

// newScheduler builds a Scheduler with custom configuration, primarily for tests.
func newScheduler(workers int, cfg schedulerConfig) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	if cfg.idleInterval <= 0 {
		cfg.idleInterval = defaultIdleInterval
	}
	if cfg.observer == nil {
		cfg.observer = nopObserver{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		workers:      workers,
		spacing:      cfg.spacing,
		observer:     cfg.observer,
		submitCh:     make(chan Job, workers*4),
		groupCh:      make(chan groupRequest),
		cancelled:    map[string]struct{}{},
		workCh:       make(chan Job, workers),
		finishedCh:   make(chan struct{}, workers),
		stopCh:       make(chan struct{}),
		loopDone:     make(chan struct{}),
		doneCh:       make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
		state:        newSchedulerState(cfg.spacing),
		now:          cfg.now,
		idleInterval: cfg.idleInterval,
	}
	go s.run()
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	go func() {
		<-s.loopDone
		s.wg.Wait()
		close(s.doneCh)
	}()
	return s
}

func (s *Scheduler) drop(job Job) {
	s.observer.OnDrop(job)
	if job.OnDrop != nil {
		job.OnDrop()
	}
}

// groupRequest cancels or releases a group inside the loop.
type groupRequest struct {
	group   string
	release bool
	done    chan struct{}
}
