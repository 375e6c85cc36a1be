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

// Package model defines the capabilities a trainable model provides and the
// slot through which trained models are handed from training to serving.
package model

import "github.com/Strife-AI/Strife.ML/pkg/samples"

// TrainingResult reports the outcome of one training execution.
type TrainingResult struct {
	Loss    float64
	Success bool
}

// Network is a trainable decision model.
//
// Decide must not modify the network: a published network is shared by every
// decision served from it. TrainBatch is only ever called on the trainer's
// private instance, one batch at a time.
type Network[I, O any] interface {
	// Decide returns one output for every row of input. Each row is a
	// sequence of input.Cols() consecutive observations.
	Decide(input samples.Grid[I]) ([]O, error)

	// TrainBatch runs one training step on batch.
	TrainBatch(batch samples.Batch[I, O]) (TrainingResult, error)
}

// Codec turns a model into bytes and back. Deserialize must return a new
// instance that shares no mutable state with the serialized one.
type Codec[M any] interface {
	Serialize(m M) ([]byte, error)
	Deserialize(data []byte) (M, error)
}
