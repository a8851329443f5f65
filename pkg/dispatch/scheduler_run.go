package dispatch

import "time"

// run drives the scheduler loop until Stop.
func (s *Scheduler) run() {
	timer := time.NewTimer(s.idleInterval)
	defer timer.Stop()
	available := s.workers

	for {
		now := s.now()
		s.state.promoteReady(now)
		for available > 0 {
			job, ok := s.state.nextReady(now)
			if !ok {
				break
			}
			available--
			s.observer.OnDispatch(job)
			s.workCh <- job
		}
		resetTimer(timer, s.nextWakeDelay(now))

		select {
		case <-s.stopCh:
			s.dropQueued()
			close(s.workCh)
			close(s.loopDone)
			return
		case job := <-s.submitCh:
			if s.state.isCancelled(job.Group) {
				s.drop(job)
				continue
			}
			s.state.enqueueReady(job)
		case req := <-s.groupCh:
			if req.release {
				s.state.release(req.group)
			} else {
				for _, job := range s.state.cancel(req.group) {
					s.drop(job)
				}
			}
			close(req.done)
		case <-s.finishedCh:
			available++
		case <-timer.C:
		}
	}
}

// dropQueued discards everything not yet handed to a worker.
func (s *Scheduler) dropQueued() {
	for {
		select {
		case job := <-s.submitCh:
			s.drop(job)
		default:
			for _, job := range s.state.drain() {
				s.drop(job)
			}
			return
		}
	}
}

// nextWakeDelay computes the delay until the next blocked job is ready.
func (s *Scheduler) nextWakeDelay(now time.Time) time.Duration {
	next, ok := s.state.nextBlockedTime()
	if !ok {
		return s.idleInterval
	}
	delay := next.Sub(now)
	if delay < 0 {
		return 0
	}
	return delay
}

// resetTimer stops and resets a timer to the provided delay.
func resetTimer(timer *time.Timer, delay time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(delay)
}
