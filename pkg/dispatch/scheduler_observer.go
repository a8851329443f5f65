package dispatch

// Observer receives scheduler lifecycle events for a job.
type Observer interface {
	// OnDispatch signals that a job was handed to a worker.
	OnDispatch(job Job)
	// OnDrop signals that a job was discarded without running.
	OnDrop(job Job)
}

type nopObserver struct{}

func (nopObserver) OnDispatch(Job) {}
func (nopObserver) OnDrop(Job)     {}
