package dispatch

import (
	"time"

	"golang.org/x/time/rate"
)

// schedulerState owns queue state for the scheduler loop.
type schedulerState struct {
	spacing   time.Duration
	queues    map[string]*targetQueue
	order     []string
	rrIndex   int
	cancelled map[string]struct{}
}

// targetQueue holds jobs for one target.
type targetQueue struct {
	key     string
	limiter *rate.Limiter
	ready   []Job
	blocked blockedQueue
}

// blockedQueue maintains parked jobs ordered by not-before time.
type blockedQueue struct {
	items []blockedItem
}

// blockedItem stores a job that cannot run until notBefore.
type blockedItem struct {
	job       Job
	notBefore time.Time
}

// newSchedulerState initializes queue state for a Scheduler.
func newSchedulerState(spacing time.Duration) *schedulerState {
	return &schedulerState{
		spacing:   spacing,
		queues:    map[string]*targetQueue{},
		cancelled: map[string]struct{}{},
	}
}

// enqueueReady adds a job to the ready list for its target.
func (s *schedulerState) enqueueReady(job Job) {
	q := s.queue(job.Target)
	q.ready = append(q.ready, job)
}

// promoteReady moves blocked jobs whose time has come back to the head of
// their ready list.
func (s *schedulerState) promoteReady(now time.Time) {
	for _, q := range s.queues {
		for {
			item, ok := q.blocked.popReady(now)
			if !ok {
				break
			}
			q.ready = append([]Job{item.job}, q.ready...)
		}
	}
}

// nextReady returns the next dispatchable job, round robin across targets.
// A target still inside its spacing window parks its head job on the blocked
// list until the limiter will admit it.
func (s *schedulerState) nextReady(now time.Time) (Job, bool) {
	if len(s.order) == 0 {
		return Job{}, false
	}
	start := s.rrIndex
	for i := 0; i < len(s.order); i++ {
		idx := (start + i) % len(s.order)
		q := s.queues[s.order[idx]]
		if len(q.ready) == 0 || len(q.blocked.items) > 0 {
			continue
		}
		job := q.ready[0]
		q.ready = q.ready[1:]
		if !q.limiter.AllowN(now, 1) {
			q.blocked.push(blockedItem{job: job, notBefore: now.Add(q.wait(now))})
			continue
		}
		s.rrIndex = (idx + 1) % len(s.order)
		return job, true
	}
	return Job{}, false
}

// wait estimates how long until the target's limiter holds a full token.
func (q *targetQueue) wait(now time.Time) time.Duration {
	missing := 1 - q.limiter.TokensAt(now)
	if missing <= 0 {
		return 0
	}
	delay := time.Duration(missing / float64(q.limiter.Limit()) * float64(time.Second))
	if delay < time.Millisecond {
		delay = time.Millisecond
	}
	return delay
}

// nextBlockedTime returns the earliest blocked job time.
func (s *schedulerState) nextBlockedTime() (time.Time, bool) {
	var earliest time.Time
	ok := false
	for _, q := range s.queues {
		if next, has := q.blocked.peekTime(); has {
			if !ok || next.Before(earliest) {
				earliest = next
				ok = true
			}
		}
	}
	return earliest, ok
}

// drain removes and returns every queued job in target order.
func (s *schedulerState) drain() []Job {
	var out []Job
	for _, key := range s.order {
		q := s.queues[key]
		for _, item := range q.blocked.items {
			out = append(out, item.job)
		}
		out = append(out, q.ready...)
		q.ready, q.blocked.items = nil, nil
	}
	return out
}

// cancel marks group cancelled and removes its queued jobs in target order.
func (s *schedulerState) cancel(group string) []Job {
	s.cancelled[group] = struct{}{}
	var out []Job
	for _, key := range s.order {
		q := s.queues[key]
		kept := q.blocked.items[:0]
		for _, item := range q.blocked.items {
			if item.job.Group == group {
				out = append(out, item.job)
				continue
			}
			kept = append(kept, item)
		}
		q.blocked.items = kept
		ready := q.ready[:0]
		for _, job := range q.ready {
			if job.Group == group {
				out = append(out, job)
				continue
			}
			ready = append(ready, job)
		}
		q.ready = ready
	}
	return out
}

func (s *schedulerState) release(group string) {
	delete(s.cancelled, group)
}

func (s *schedulerState) isCancelled(group string) bool {
	_, ok := s.cancelled[group]
	return ok
}

// queue returns the targetQueue for a key, creating it on demand.
func (s *schedulerState) queue(key string) *targetQueue {
	if q, ok := s.queues[key]; ok {
		return q
	}
	limit := rate.Inf
	if s.spacing > 0 {
		limit = rate.Every(s.spacing)
	}
	q := &targetQueue{key: key, limiter: rate.NewLimiter(limit, 1)}
	s.queues[key] = q
	s.order = append(s.order, key)
	return q
}

// push inserts a blocked item in time order.
func (b *blockedQueue) push(item blockedItem) {
	idx := b.searchIndex(item.notBefore)
	b.items = append(b.items, blockedItem{})
	copy(b.items[idx+1:], b.items[idx:])
	b.items[idx] = item
}

// popReady removes the earliest item if it is ready.
func (b *blockedQueue) popReady(now time.Time) (blockedItem, bool) {
	if len(b.items) == 0 || b.items[0].notBefore.After(now) {
		return blockedItem{}, false
	}
	item := b.items[0]
	b.items = b.items[1:]
	return item, true
}

// peekTime returns the earliest not-before time without removing it.
func (b *blockedQueue) peekTime() (time.Time, bool) {
	if len(b.items) == 0 {
		return time.Time{}, false
	}
	return b.items[0].notBefore, true
}

// searchIndex finds the insertion index for the provided time.
func (b *blockedQueue) searchIndex(target time.Time) int {
	for i, item := range b.items {
		if !item.notBefore.Before(target) {
			return i
		}
	}
	return len(b.items)
}
