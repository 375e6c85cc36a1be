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

// Package trainer collects samples and periodically retrains a model in the
// background, publishing every successfully trained model for the deciders.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/Strife-AI/Strife.ML/internal/config"
	"github.com/Strife-AI/Strife.ML/internal/logging"
	"github.com/Strife-AI/Strife.ML/internal/metrics"
	"github.com/Strife-AI/Strife.ML/pkg/async"
	"github.com/Strife-AI/Strife.ML/pkg/model"
	"github.com/Strife-AI/Strife.ML/pkg/samples"
)

// ErrTrainingRejected is returned by NotifyTrainingComplete for a result
// that did not report success. Such models are never published.
var ErrTrainingRejected = errors.New("trainer: training result not successful")

// Trainer owns a private network that it trains on batches of sample
// sequences at a fixed rate. Every successful run is serialized, decoded into
// a fresh network and published to the trainer's model slot.
type Trainer[I, O any, N model.Network[I, O]] struct {
	cfg       config.TrainerConfig
	network   N
	codec     model.Codec[N]
	slot      *model.Slot[N]
	scheduler *async.Scheduler
	hooks     Hooks[I, O, N]
	logger    logr.Logger

	// sampleMu guards the sample store behind the hooks and totalSamples.
	sampleMu     sync.Mutex
	totalSamples int
	active       atomic.Bool

	// trainingInput is written by fire and read by runTraining, only while
	// inFlight is held.
	inFlight      atomic.Bool
	trainingInput samples.Batch[I, O]

	taskMu sync.Mutex
	task   *async.ScheduledTask
}

// New returns a trainer that trains network. cfg must be valid.
func New[I, O any, N model.Network[I, O]](
	cfg config.TrainerConfig,
	network N,
	codec model.Codec[N],
	scheduler *async.Scheduler,
	hooks Hooks[I, O, N],
	logger logr.Logger,
) (*Trainer[I, O, N], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trainer config: %w", err)
	}
	if codec == nil {
		return nil, errors.New("trainer: model codec is required")
	}
	if scheduler == nil {
		return nil, errors.New("trainer: scheduler is required")
	}
	return &Trainer[I, O, N]{
		cfg:           cfg,
		network:       network,
		codec:         codec,
		slot:          model.NewSlot(hooks.OnCreateNewModel),
		scheduler:     scheduler,
		hooks:         hooks,
		logger:        logger.WithName("trainer"),
		trainingInput: samples.NewGrid[samples.Sample[I, O]](cfg.BatchSize, cfg.SequenceLength),
	}, nil
}

// Slot returns the slot trained models are published to.
func (t *Trainer[I, O, N]) Slot() *model.Slot[N] { return t.slot }

// Active reports whether enough samples were received to train.
func (t *Trainer[I, O, N]) Active() bool { return t.active.Load() }

// TotalSamples returns the number of samples received so far.
func (t *Trainer[I, O, N]) TotalSamples() int {
	t.sampleMu.Lock()
	defer t.sampleMu.Unlock()
	return t.totalSamples
}

// AddSample hands sample to the SampleSink hook. Training becomes active once
// MinSamplesBeforeTraining samples have been added.
func (t *Trainer[I, O, N]) AddSample(sample samples.Sample[I, O]) {
	t.sampleMu.Lock()
	if t.hooks.SampleSink != nil {
		t.hooks.SampleSink(sample)
	}
	t.totalSamples++
	total := t.totalSamples
	activated := !t.active.Load() && total >= t.cfg.MinSamplesBeforeTraining
	if activated {
		t.active.Store(true)
	}
	// Recorded under the lock so the gauge never moves backwards.
	metrics.RecordTrainerSamples(total, t.active.Load())
	t.sampleMu.Unlock()

	if activated {
		t.logger.Info("Training activated", "samples", total)
	}
}

// TryCreateBatch fills every row of out with a sequence from the
// SequenceSelector hook. It returns false as soon as one row cannot be
// filled, in which case the content of out is unspecified.
func (t *Trainer[I, O, N]) TryCreateBatch(out samples.Batch[I, O]) bool {
	t.sampleMu.Lock()
	defer t.sampleMu.Unlock()
	return t.tryCreateBatchLocked(out)
}

func (t *Trainer[I, O, N]) tryCreateBatchLocked(out samples.Batch[I, O]) bool {
	if t.hooks.SequenceSelector == nil {
		return false
	}
	for row := 0; row < out.Rows(); row++ {
		if !t.hooks.SequenceSelector(out.Row(row)) {
			return false
		}
	}
	return true
}

// StartRunning registers the recurring training task, first due now. It is a
// no-op if the trainer is already running.
func (t *Trainer[I, O, N]) StartRunning() {
	t.taskMu.Lock()
	defer t.taskMu.Unlock()
	if t.task != nil {
		return
	}
	t.task = t.scheduler.ScheduleRecurring(t.scheduler.Now(), t.cfg.Period(), t.fire)
	t.logger.Info("Trainer started", "period", t.cfg.Period(),
		"batchSize", t.cfg.BatchSize, "sequenceLength", t.cfg.SequenceLength)
}

// StopRunning removes the recurring training task. A training execution
// already submitted runs to completion and may still publish.
func (t *Trainer[I, O, N]) StopRunning() {
	t.taskMu.Lock()
	defer t.taskMu.Unlock()
	if t.task == nil {
		return
	}
	t.task.Stop()
	t.task = nil
	t.logger.Info("Trainer stopped")
}

// Running reports whether the recurring training task is registered.
func (t *Trainer[I, O, N]) Running() bool {
	t.taskMu.Lock()
	defer t.taskMu.Unlock()
	return t.task != nil
}

// fire is the body of one scheduler firing.
func (t *Trainer[I, O, N]) fire(ctx context.Context) {
	logger := logr.FromContextOrDiscard(ctx).WithName("trainer")

	if !t.active.Load() {
		metrics.RecordSkippedFiring(metrics.SkipInactive)
		return
	}
	if !t.inFlight.CompareAndSwap(false, true) {
		metrics.RecordSkippedFiring(metrics.SkipInFlight)
		logger.V(logging.TRACE).Info("Previous training still running, skipping")
		return
	}

	t.sampleMu.Lock()
	built := t.tryCreateBatchLocked(t.trainingInput)
	t.sampleMu.Unlock()

	if !built {
		t.inFlight.Store(false)
		metrics.RecordBatch(metrics.BatchSkipped)
		logger.V(logging.DEBUG).Info("Not enough grouped history for a batch, skipping")
		return
	}
	metrics.RecordBatch(metrics.BatchBuilt)

	runID := uuid.New()
	if !t.scheduler.Queue().Enqueue(func(ctx context.Context) { t.runTraining(ctx, runID) }) {
		t.inFlight.Store(false)
	}
}

func (t *Trainer[I, O, N]) runTraining(ctx context.Context, runID uuid.UUID) {
	// The network and trainingInput belong to this run until released;
	// publication does not touch either.
	released := false
	release := func() {
		if !released {
			released = true
			t.inFlight.Store(false)
		}
	}
	defer release()
	logger := logr.FromContextOrDiscard(ctx).WithName("trainer").WithValues("runID", runID)

	if t.hooks.OnRunBatch != nil {
		t.hooks.OnRunBatch(t.trainingInput)
	}

	start := time.Now()
	result, err := t.network.TrainBatch(t.trainingInput)
	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordTrainingRun(metrics.TrainingFailed, elapsed, 0)
		logger.Error(err, "Training failed")
		return
	}
	if !result.Success {
		metrics.RecordTrainingRun(metrics.TrainingRejected, elapsed, result.Loss)
		logger.V(logging.DEBUG).Info("Training reported no success, not publishing", "loss", result.Loss)
		return
	}

	data, err := t.codec.Serialize(t.network)
	release()
	if err != nil {
		metrics.RecordTrainingRun(metrics.TrainingFailed, elapsed, result.Loss)
		logger.Error(err, "Failed to serialize trained model")
		return
	}
	metrics.RecordTrainingRun(metrics.TrainingSucceeded, elapsed, result.Loss)

	if _, err := t.notifyTrainingComplete(logger, runID, data, result); err != nil {
		logger.Error(err, "Failed to publish trained model")
	}
}

// NotifyTrainingComplete decodes a trained model and publishes it. Results
// that do not report success are rejected with ErrTrainingRejected.
func (t *Trainer[I, O, N]) NotifyTrainingComplete(serialized []byte, result model.TrainingResult) (model.Published[N], error) {
	return t.notifyTrainingComplete(t.logger, uuid.New(), serialized, result)
}

func (t *Trainer[I, O, N]) notifyTrainingComplete(logger logr.Logger, runID uuid.UUID, serialized []byte, result model.TrainingResult) (model.Published[N], error) {
	if !result.Success {
		return model.Published[N]{}, ErrTrainingRejected
	}
	m, err := t.codec.Deserialize(serialized)
	if err != nil {
		return model.Published[N]{}, fmt.Errorf("trainer: decoding trained model: %w", err)
	}

	published := t.slot.PublishRun(m, runID)
	logger.V(logging.VERBOSE).Info("Published trained model",
		"version", published.Version, "loss", result.Loss, "bytes", len(serialized))

	if t.hooks.OnTrainingComplete != nil {
		t.hooks.OnTrainingComplete(result, published)
	}
	return published, nil
}
