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
	"errors"
	"sync"

	"github.com/Strife-AI/Strife.ML/pkg/codec"
	"github.com/Strife-AI/Strife.ML/pkg/linear"
	"github.com/Strife-AI/Strife.ML/pkg/model"
	"github.com/Strife-AI/Strife.ML/pkg/samples"
)

type sample = samples.Sample[linear.Features, linear.Target]

// fakeNetwork counts its training generations. Only Generation survives
// serialization.
type fakeNetwork struct {
	Generation int32

	mu       sync.Mutex
	result   model.TrainingResult
	err      error
	gate     chan struct{}
	started  chan struct{}
	lastEnds []float64
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{result: model.TrainingResult{Loss: 0.5, Success: true}}
}

func (n *fakeNetwork) Serialize(s *codec.Serializer) {
	s.Int32(&n.Generation, "generation")
}

func (n *fakeNetwork) Decide(input samples.Grid[linear.Features]) ([]linear.Target, error) {
	return make([]linear.Target, input.Rows()), nil
}

func (n *fakeNetwork) TrainBatch(batch samples.Batch[linear.Features, linear.Target]) (model.TrainingResult, error) {
	n.mu.Lock()
	gate, started := n.gate, n.started
	n.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastEnds = n.lastEnds[:0]
	for row := 0; row < batch.Rows(); row++ {
		seq := batch.Row(row)
		n.lastEnds = append(n.lastEnds, seq[len(seq)-1].Output.Value)
	}
	if n.err != nil {
		return model.TrainingResult{}, n.err
	}
	n.Generation++
	return n.result, nil
}

func (n *fakeNetwork) script(result model.TrainingResult, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.result, n.err = result, err
}

// hold makes every training execution signal on started and wait on the
// returned gate.
func (n *fakeNetwork) hold() (gate chan struct{}, started chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gate = make(chan struct{})
	n.started = make(chan struct{}, 16)
	return n.gate, n.started
}

func (n *fakeNetwork) generation() int32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.Generation
}

type fakeCodec struct{}

func (fakeCodec) Serialize(n *fakeNetwork) ([]byte, error) {
	return codec.Marshal(n), nil
}

func (fakeCodec) Deserialize(data []byte) (*fakeNetwork, error) {
	if len(data) == 0 {
		return nil, errors.New("empty model")
	}
	n := &fakeNetwork{}
	if err := codec.Unmarshal(data, n); err != nil {
		return nil, err
	}
	return n, nil
}

func makeSample(v float64) sample {
	return sample{
		Input:  linear.Features{Values: []float64{v}},
		Output: linear.Target{Value: v},
	}
}
