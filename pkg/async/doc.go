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

// Package async is the asynchronous work-execution substrate of the pipeline.
//
// It has three parts:
//   - WorkQueue: a fixed set of worker goroutines draining a shared FIFO queue of
//     independent work items. Items run to completion; there is no cancellation.
//   - Handle: the result of a typed work item, polled with IsComplete or awaited
//     with Wait.
//   - Scheduler: one-shot and recurring timed tasks. An external driver calls
//     Advance(now) (or runs Run) and every due task is handed to the WorkQueue.
//     Recurring tasks are fixed-rate: the next run is the previous scheduled
//     run plus the period, never the actual completion time.
//
// Example usage:
//
//	queue := async.NewWorkQueue(cfg.WorkQueue, logger)
//	queue.Start(ctx)
//	defer queue.Shutdown()
//
//	h := async.Submit(queue, func(ctx context.Context) (int, error) {
//	    return 42, nil
//	})
//	v, err := h.Wait(ctx)
//
//	sched := async.NewScheduler(queue, clock.RealClock{}, logger)
//	sched.ScheduleRecurring(sched.Now(), time.Second, func(ctx context.Context) {
//	    // runs once per second on a worker
//	})
//	go sched.Run(ctx, 10*time.Millisecond)
package async
