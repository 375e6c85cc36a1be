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

package trainer

import (
	"github.com/Strife-AI/Strife.ML/pkg/model"
	"github.com/Strife-AI/Strife.ML/pkg/samples"
)

// Hooks customise what a Trainer does with samples and trained models. Every
// hook is optional.
type Hooks[I, O any, N model.Network[I, O]] struct {
	// SampleSink receives every sample passed to AddSample, with the sample
	// lock held. It usually appends to a samples.Store.
	SampleSink func(sample samples.Sample[I, O])

	// SequenceSelector fills one batch row with consecutive samples and
	// reports whether it could. It runs with the sample lock held, usually
	// backed by GroupIndex.TryPickRandomSequence.
	SequenceSelector func(out []samples.Sample[I, O]) bool

	// OnRunBatch is called on the worker right before a training execution.
	OnRunBatch func(batch samples.Batch[I, O])

	// OnTrainingComplete is called after a trained model was published.
	OnTrainingComplete func(result model.TrainingResult, published model.Published[N])

	// OnCreateNewModel is called for every publication while the model slot
	// lock is held.
	OnCreateNewModel func(published model.Published[N])
}
