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
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/workqueue"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/Strife-AI/Strife.ML/internal/config"
	"github.com/Strife-AI/Strife.ML/internal/logging"
)

var (
	// ErrShuttingDown completes handles submitted after Shutdown began.
	ErrShuttingDown = errors.New("async: work queue is shutting down")
	// ErrWorkItemPanicked completes the handle of a work item that panicked.
	ErrWorkItemPanicked = errors.New("async: work item panicked")
)

// WorkFunc is a unit of fire-and-forget work. The context carries the queue's
// logger and is never cancelled while the item runs.
type WorkFunc func(ctx context.Context)

// workItem is owned by the queue until it has executed.
type workItem struct {
	run     WorkFunc
	onPanic func(err error)
}

// WorkQueue runs independent work items on a fixed set of worker goroutines
// draining a shared FIFO queue.
type WorkQueue struct {
	queue   workqueue.TypedInterface[*workItem]
	workers int
	logger  logr.Logger

	// mu orders add against Shutdown so that an accepted item is never
	// dropped by the underlying queue.
	mu     sync.RWMutex
	closed bool

	startOnce sync.Once
	itemCtx   context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewWorkQueue creates a queue with cfg.Workers workers. When cfg.Name is set
// the queue reports depth and latency through the workqueue metrics provider
// (controller-runtime installs one on its registry).
func NewWorkQueue(cfg config.WorkQueueConfig, logger logr.Logger) *WorkQueue {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &WorkQueue{
		queue: workqueue.NewTypedWithConfig(workqueue.TypedQueueConfig[*workItem]{
			Name: cfg.Name,
		}),
		workers: workers,
		logger:  logger.WithName("work-queue"),
	}
}

// Start launches the workers. Items enqueued before Start wait in the queue.
// Cancelling ctx does not interrupt running items; use Shutdown to stop.
func (q *WorkQueue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		base := context.WithoutCancel(ctx)
		q.itemCtx = log.IntoContext(base, q.logger)
		ctx, q.cancel = context.WithCancel(base)
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func() {
				defer q.wg.Done()
				wait.UntilWithContext(ctx, q.runWorker, time.Second)
			}()
		}
		q.logger.Info("Work queue started", "workers", q.workers)
	})
}

// Shutdown stops accepting new items, waits for every queued item to run and
// then stops the workers. A queue that was never started is started first so
// that nothing enqueued is lost.
func (q *WorkQueue) Shutdown() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.Start(context.Background())
	// Get keeps handing out queued items after ShutDown and reports shutdown
	// only once the queue is empty, so the workers drain it before exiting.
	q.queue.ShutDown()
	q.wg.Wait()
	q.logger.Info("Work queue stopped")
}

// Workers returns the number of worker goroutines.
func (q *WorkQueue) Workers() int { return q.workers }

// Len returns the number of items waiting to be picked up.
func (q *WorkQueue) Len() int { return q.queue.Len() }

// Enqueue adds fire-and-forget work. It returns false if the queue is
// shutting down and the work was dropped.
func (q *WorkQueue) Enqueue(fn WorkFunc) bool {
	return q.add(&workItem{run: fn})
}

func (q *WorkQueue) add(item *workItem) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.V(logging.DEBUG).Info("Dropping work item, queue is shutting down")
		return false
	}
	q.queue.Add(item)
	return true
}

// Submit adds work whose result is retrieved through the returned handle.
func Submit[T any](q *WorkQueue, fn func(ctx context.Context) (T, error)) *Handle[T] {
	h := newHandle[T]()
	item := &workItem{
		run: func(ctx context.Context) {
			v, err := fn(ctx)
			h.complete(v, err)
		},
		onPanic: func(err error) {
			var zero T
			h.complete(zero, err)
		},
	}
	if !q.add(item) {
		var zero T
		h.complete(zero, ErrShuttingDown)
	}
	return h
}

func (q *WorkQueue) runWorker(_ context.Context) {
	for q.processNextItem() {
	}
	// The queue is shut down and empty. Stop every worker loop; one that has
	// not reached runWorker yet has nothing left to pull.
	q.cancel()
}

func (q *WorkQueue) processNextItem() bool {
	item, shutdown := q.queue.Get()
	if shutdown {
		return false
	}
	defer q.queue.Done(item)

	q.execute(item)
	return true
}

func (q *WorkQueue) execute(item *workItem) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrWorkItemPanicked, r)
			q.logger.Error(err, "Work item panicked")
			if item.onPanic != nil {
				item.onPanic(err)
			}
		}
	}()
	item.run(q.itemCtx)
}
