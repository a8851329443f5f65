package dispatch

// worker consumes jobs from the work channel and executes them.
func (s *Scheduler) worker() {
	defer s.wg.Done()
	for job := range s.workCh {
		s.handleJob(job)
	}
}

// handleJob runs a job unless Stop or Cancel won the race for it.
func (s *Scheduler) handleJob(job Job) {
	s.gate.RLock()
	rejected := s.rejects(job)
	s.gate.RUnlock()
	if rejected {
		s.drop(job)
	} else if job.Run != nil {
		job.Run(s.ctx)
	}
	s.finishedCh <- struct{}{}
}
