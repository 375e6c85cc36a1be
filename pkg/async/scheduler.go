/*
Copyright 2025 The Strife.ML Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package async

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/Strife-AI/Strife.ML/internal/logging"
	"github.com/Strife-AI/Strife.ML/internal/metrics"
)

// ScheduledTask is a unit of work registered with a Scheduler, either one-shot
// or recurring.
type ScheduledTask struct {
	fn      WorkFunc
	nextRun time.Time
	period  time.Duration // zero for one-shot tasks

	seq   uint64
	index int // position in the heap, -1 once removed

	scheduler *Scheduler
}

// Recurring reports whether the task repeats.
func (t *ScheduledTask) Recurring() bool { return t.period > 0 }

// NextRun returns the time at which the task is next due.
func (t *ScheduledTask) NextRun() time.Time {
	t.scheduler.mu.Lock()
	defer t.scheduler.mu.Unlock()
	return t.nextRun
}

// Stop removes the task from its scheduler. A dispatch that already reached
// the work queue still runs. It returns false if the task was not scheduled,
// either because it was stopped before or because a one-shot task already fired.
func (t *ScheduledTask) Stop() bool {
	s := t.scheduler
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.index < 0 {
		return false
	}
	heap.Remove(&s.tasks, t.index)
	return true
}

func (t *ScheduledTask) kind() string {
	if t.Recurring() {
		return metrics.TaskRecurring
	}
	return metrics.TaskOneShot
}

// taskHeap orders tasks by next run time, then by registration order.
type taskHeap []*ScheduledTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].nextRun.Equal(h[j].nextRun) {
		return h[i].seq < h[j].seq
	}
	return h[i].nextRun.Before(h[j].nextRun)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*ScheduledTask)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Scheduler hands due tasks to a WorkQueue. It never runs task work itself;
// something must call Advance periodically, usually Run.
type Scheduler struct {
	queue  *WorkQueue
	clock  clock.WithTicker
	logger logr.Logger

	mu    sync.Mutex
	tasks taskHeap
	seq   uint64
}

// NewScheduler creates a scheduler dispatching to queue. A nil clk uses the
// real clock.
func NewScheduler(queue *WorkQueue, clk clock.WithTicker, logger logr.Logger) *Scheduler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Scheduler{
		queue:  queue,
		clock:  clk,
		logger: logger.WithName("scheduler"),
	}
}

// Queue returns the work queue due tasks are dispatched to.
func (s *Scheduler) Queue() *WorkQueue { return s.queue }

// Now returns the current time of the scheduler's clock.
func (s *Scheduler) Now() time.Time { return s.clock.Now() }

// Len returns the number of registered tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// ScheduleOnce registers fn to be dispatched once, at the first Advance whose
// time is at or after at.
func (s *Scheduler) ScheduleOnce(at time.Time, fn WorkFunc) *ScheduledTask {
	return s.schedule(at, 0, fn)
}

// ScheduleRecurring registers fn to be dispatched at first and then every
// period after it. Run times are computed from the previous scheduled time,
// not from when the dispatch happened, so the cadence does not drift.
func (s *Scheduler) ScheduleRecurring(first time.Time, period time.Duration, fn WorkFunc) *ScheduledTask {
	if period <= 0 {
		panic(fmt.Sprintf("async: recurring task period must be positive, got %s", period))
	}
	return s.schedule(first, period, fn)
}

func (s *Scheduler) schedule(at time.Time, period time.Duration, fn WorkFunc) *ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &ScheduledTask{
		fn:        fn,
		nextRun:   at,
		period:    period,
		seq:       s.seq,
		scheduler: s,
	}
	heap.Push(&s.tasks, t)
	s.logger.V(logging.TRACE).Info("Task scheduled", "at", at, "period", period)
	return t
}

// Advance dispatches every task due at now to the work queue, in due order,
// and returns how many were dispatched. A recurring task is dispatched at
// most once per call; periods it missed are caught up one per later call.
func (s *Scheduler) Advance(now time.Time) int {
	s.mu.Lock()
	var due []*ScheduledTask
	for len(s.tasks) > 0 && !s.tasks[0].nextRun.After(now) {
		due = append(due, heap.Pop(&s.tasks).(*ScheduledTask))
	}
	for _, t := range due {
		if t.Recurring() {
			t.nextRun = t.nextRun.Add(t.period)
			heap.Push(&s.tasks, t)
		}
	}
	s.mu.Unlock()

	dispatched := 0
	for _, t := range due {
		if !s.queue.Enqueue(t.fn) {
			continue
		}
		dispatched++
		metrics.RecordSchedulerDispatch(t.kind())
	}
	if dispatched > 0 {
		s.logger.V(logging.TRACE).Info("Dispatched due tasks", "count", dispatched, "now", now)
	}
	return dispatched
}

// Run advances the scheduler on every tick of its clock until ctx is done.
func (s *Scheduler) Run(ctx context.Context, tick time.Duration) error {
	ticker := s.clock.NewTicker(tick)
	defer ticker.Stop()

	s.logger.Info("Scheduler driver started", "tick", tick)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler driver stopped")
			return nil
		case <-ticker.C():
			s.Advance(s.clock.Now())
		}
	}
}
