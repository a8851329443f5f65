package live

import (
	"io"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"promptab/internal/abtest"
	"promptab/internal/runner"
)

// Controller runs the live UI and implements runner.Observer.
type Controller struct {
	events    chan Event
	program   *tea.Program
	done      chan struct{}
	closeOnce sync.Once
	now       func() time.Time
}

// Start launches a live UI controller that writes to stdout.
func Start(stdout io.Writer, opts Options) *Controller {
	if stdout == nil {
		stdout = os.Stdout
	}
	events := make(chan Event, 256)
	model := NewModel(events, opts)
	program := tea.NewProgram(model, tea.WithOutput(stdout), tea.WithInput(nil))
	controller := &Controller{
		events:  events,
		program: program,
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go func() {
		_, _ = program.Run()
		close(controller.done)
	}()
	return controller
}

// Close signals the UI to stop.
func (c *Controller) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.events)
	})
}

// Wait blocks until the UI has exited.
func (c *Controller) Wait() {
	if c == nil {
		return
	}
	<-c.done
}

// OnRunStart forwards run start events to the UI.
func (c *Controller) OnRunStart(test abtest.ABTest, total int) {
	c.send(Event{Kind: EventRunStart, Test: test, Total: total})
}

// OnSample forwards sample outcomes to the UI.
func (c *Controller) OnSample(event runner.SampleEvent) {
	c.send(Event{Kind: EventSample, Sample: event, Progress: event.Progress})
}

// OnRunEnd forwards run completion to the UI and closes it.
func (c *Controller) OnRunEnd(test abtest.ABTest, progress abtest.ExecutionProgress) {
	c.sendFinal(Event{Kind: EventRunEnd, Test: test, Progress: progress})
	c.Close()
}

// send enqueues an event without blocking the caller. Sample events are
// dropped when the UI falls behind; the next event carries fresh averages.
func (c *Controller) send(event Event) {
	if c == nil {
		return
	}
	event.At = c.now()
	select {
	case c.events <- event:
	default:
	}
}

// sendFinal waits briefly for room so the final status is not lost.
func (c *Controller) sendFinal(event Event) {
	if c == nil {
		return
	}
	event.At = c.now()
	select {
	case c.events <- event:
	case <-time.After(time.Second):
	}
}
