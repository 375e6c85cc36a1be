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

// Package decider serves decisions from the most recently trained model
// without ever waiting for training.
package decider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/Strife-AI/Strife.ML/internal/logging"
	"github.com/Strife-AI/Strife.ML/internal/metrics"
	"github.com/Strife-AI/Strife.ML/pkg/async"
	"github.com/Strife-AI/Strife.ML/pkg/model"
	"github.com/Strife-AI/Strife.ML/pkg/samples"
)

// ErrOutputCount is returned when a network does not produce exactly one
// output per input row.
var ErrOutputCount = errors.New("decider: network returned wrong number of outputs")

// Decider runs inference on the worker pool using a snapshot of the newest
// model available when each decision is requested.
type Decider[I, O any, N model.Network[I, O]] struct {
	slot   *model.Slot[N]
	queue  *async.WorkQueue
	logger logr.Logger

	mu      sync.Mutex
	network N
	version uint64
	runID   uuid.UUID
}

// New returns a decider serving initial until a model is published to slot.
func New[I, O any, N model.Network[I, O]](initial N, slot *model.Slot[N], queue *async.WorkQueue, logger logr.Logger) *Decider[I, O, N] {
	return &Decider[I, O, N]{
		slot:    slot,
		queue:   queue,
		logger:  logger.WithName("decider"),
		network: initial,
	}
}

// MakeDecision submits inference for input, one output per row, and returns
// immediately. The decision is served by the newest model published before
// the call; a model published later does not affect it. The grid's cells are
// copied, so the caller may overwrite them once MakeDecision returns.
func (d *Decider[I, O, N]) MakeDecision(input samples.Grid[I]) *async.Handle[[]O] {
	network := d.bind()
	input = input.Clone()
	return async.Submit(d.queue, func(ctx context.Context) ([]O, error) {
		start := time.Now()
		outputs, err := decide[I, O](network, input)
		metrics.RecordDecision(err, time.Since(start))
		if err != nil {
			logr.FromContextOrDiscard(ctx).V(logging.DEBUG).Info("Decision failed", "error", err.Error())
		}
		return outputs, err
	})
}

func decide[I, O any, N model.Network[I, O]](network N, input samples.Grid[I]) ([]O, error) {
	outputs, err := network.Decide(input)
	if err != nil {
		return nil, fmt.Errorf("decider: inference failed: %w", err)
	}
	if len(outputs) != input.Rows() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrOutputCount, len(outputs), input.Rows())
	}
	return outputs, nil
}

// bind claims a newly published model, if any, and returns the network to
// serve the current call with.
func (d *Decider[I, O, N]) bind() N {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.slot.TryClaim(); ok {
		d.network = p.Model
		d.version = p.Version
		d.runID = p.RunID
		d.logger.V(logging.VERBOSE).Info("Switched to new model", "version", p.Version, "runID", p.RunID)
	}
	return d.network
}

// Version returns the slot version of the bound model, 0 for the initial one.
func (d *Decider[I, O, N]) Version() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// Network returns the currently bound network.
func (d *Decider[I, O, N]) Network() N {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.network
}

// RunID returns the training run of the bound model, uuid.Nil for the
// initial one.
func (d *Decider[I, O, N]) RunID() uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runID
}
