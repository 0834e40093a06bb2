// Package sched provides the priority-lane task scheduler underlying the
// scanner and the preview engine: a small set of lanes feeding a bounded
// set of workers, with per-task timeouts, retry budgets, and cooperative
// cancellation.
package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Priority selects the lane a task is queued on. Lower values drain first.
type Priority int

const (
	Critical Priority = iota
	High
	Normal
	Low
	Idle
	laneCount
)

func (p Priority) String() string {
	switch p {
	case Critical:
		return "critical"
	case High:
		return "high"
	case Normal:
		return "normal"
	case Low:
		return "low"
	case Idle:
		return "idle"
	default:
		return "unknown"
	}
}

// Task is one unit of schedulable work. Fn must observe ctx between
// discrete units of work; the scheduler never forces termination.
type Task struct {
	Name     string
	Priority Priority
	Timeout  time.Duration // 0 disables the deadline
	Retries  int           // additional attempts after the first failure
	Fn       func(ctx context.Context) error
}

// Handle tracks a submitted task.
type Handle struct {
	done chan struct{}
	mu   sync.Mutex
	err  error
}

// Done is closed when the task reached a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the terminal error, valid after Done is closed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Handle) finish(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

type queued struct {
	task   Task
	handle *Handle
}

// Scheduler owns the lanes and the worker pool.
type Scheduler struct {
	log zerolog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	lanes   [laneCount][]queued
	limit   int
	active  int
	closed  bool
	workers sync.WaitGroup

	token *CancellationToken
}

// New builds a scheduler that runs at most workers tasks concurrently.
func New(workers int, logger zerolog.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	s := &Scheduler{log: logger, limit: workers, token: NewToken()}
	s.cond = sync.NewCond(&s.mu)
	for i := 0; i < workers; i++ {
		s.workers.Add(1)
		go s.worker()
	}
	return s
}

// Token returns the scheduler-wide cancellation token. Cancelling it stops
// all queued tasks; running tasks finish their current unit of work.
func (s *Scheduler) Token() *CancellationToken { return s.token }

// SetConcurrency adjusts how many tasks may run at once, up to the worker
// count the scheduler was built with. The resource governor calls this on
// level transitions.
func (s *Scheduler) SetConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	s.mu.Lock()
	s.limit = n
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Submit queues a task. The returned handle reports completion. Submitting
// to a stopped scheduler fails the task immediately.
func (s *Scheduler) Submit(t Task) *Handle {
	h := &Handle{done: make(chan struct{})}
	if t.Fn == nil {
		h.finish(fmt.Errorf("task %q has no function", t.Name))
		return h
	}
	if t.Priority < Critical || t.Priority >= laneCount {
		t.Priority = Normal
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		h.finish(fmt.Errorf("scheduler stopped"))
		return h
	}
	s.lanes[t.Priority] = append(s.lanes[t.Priority], queued{task: t, handle: h})
	s.mu.Unlock()
	s.cond.Signal()
	return h
}

// Stop prevents further submissions, cancels the token, and waits for
// workers to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.token.Cancel()
	s.cond.Broadcast()
	s.workers.Wait()
}

func (s *Scheduler) worker() {
	defer s.workers.Done()
	for {
		s.mu.Lock()
		for !s.closed && (s.active >= s.limit || s.empty()) {
			s.cond.Wait()
		}
		if s.closed && s.empty() {
			s.mu.Unlock()
			return
		}
		q, ok := s.pop()
		if !ok {
			s.mu.Unlock()
			continue
		}
		s.active++
		s.mu.Unlock()

		s.run(q)

		s.mu.Lock()
		s.active--
		s.mu.Unlock()
		s.cond.Broadcast()
	}
}

func (s *Scheduler) empty() bool {
	for _, lane := range s.lanes {
		if len(lane) > 0 {
			return false
		}
	}
	return true
}

// pop removes the head of the highest-priority non-empty lane. Caller holds
// the lock.
func (s *Scheduler) pop() (queued, bool) {
	for i := range s.lanes {
		if len(s.lanes[i]) > 0 {
			q := s.lanes[i][0]
			s.lanes[i] = s.lanes[i][1:]
			return q, true
		}
	}
	return queued{}, false
}

func (s *Scheduler) run(q queued) {
	if s.token.Cancelled() {
		q.handle.finish(context.Canceled)
		return
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	var err error
	for attempt := 0; ; attempt++ {
		err = s.attempt(q.task)
		if err == nil || attempt >= q.task.Retries || s.token.Cancelled() {
			break
		}
		wait := policy.NextBackOff()
		s.log.Debug().Str("task", q.task.Name).Int("attempt", attempt+1).
			Dur("backoff", wait).Err(err).Msg("task failed, retrying")
		select {
		case <-time.After(wait):
		case <-s.token.Done():
			err = context.Canceled
		}
		if err == context.Canceled {
			break
		}
	}
	q.handle.finish(err)
}

func (s *Scheduler) attempt(t Task) error {
	ctx, cancel := s.token.Context(context.Background())
	defer cancel()
	if t.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, t.Timeout)
		defer cancelTimeout()
	}
	return t.Fn(ctx)
}
