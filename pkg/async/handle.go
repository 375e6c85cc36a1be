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
	"sync"
	"time"
)

// Handle is the result of a work item submitted with Submit.
//
// The value and error are written exactly once, before the Done channel is
// closed, so they are safe to read from any goroutine after Done.
type Handle[T any] struct {
	submittedAt time.Time
	completedAt time.Time

	value T
	err   error

	done         chan struct{}
	onceComplete sync.Once
}

func newHandle[T any]() *Handle[T] {
	return &Handle[T]{
		submittedAt: time.Now(),
		done:        make(chan struct{}),
	}
}

// Done returns a channel that is closed once the work item has completed.
//
//	select {
//	case <-h.Done():
//	    v, err := h.Result()
//	case <-ctx.Done():
//	}
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// IsComplete reports, without blocking, whether the result is available.
func (h *Handle[T]) IsComplete() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Result returns the value and error of a completed work item.
//
// It panics if the item has not completed: reading a result early is a
// programming error, poll IsComplete or use Wait instead.
func (h *Handle[T]) Result() (T, error) {
	if !h.IsComplete() {
		panic("async: Result called on a handle that has not completed")
	}
	return h.value, h.err
}

// Wait blocks until the work item completes or ctx is done. Cancelling ctx
// stops the wait, not the work item.
func (h *Handle[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Elapsed returns the time between submission and completion, or zero if the
// item is still pending.
func (h *Handle[T]) Elapsed() time.Duration {
	if !h.IsComplete() {
		return 0
	}
	return h.completedAt.Sub(h.submittedAt)
}

func (h *Handle[T]) complete(v T, err error) {
	h.onceComplete.Do(func() {
		h.value = v
		h.err = err
		h.completedAt = time.Now()
		close(h.done)
	})
}
