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

package linear

import (
	"fmt"

	"github.com/Strife-AI/Strife.ML/pkg/codec"
	"github.com/Strife-AI/Strife.ML/pkg/model"
)

// Codec implements model.Codec for *Regressor.
type Codec struct{}

var _ model.Codec[*Regressor] = Codec{}

func (Codec) Serialize(r *Regressor) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("linear: cannot serialize a nil regressor")
	}
	return codec.Marshal(r), nil
}

func (Codec) Deserialize(data []byte) (*Regressor, error) {
	r := &Regressor{}
	if err := codec.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("linear: decoding regressor: %w", err)
	}
	if len(r.weights) < 2 {
		return nil, fmt.Errorf("linear: decoded regressor has %d weights", len(r.weights))
	}
	if r.lambda <= 0 || r.learningRate <= 0 || r.learningRate > 1 {
		return nil, fmt.Errorf("linear: decoded regressor has invalid hyperparameters lambda=%g learningRate=%g", r.lambda, r.learningRate)
	}
	return r, nil
}
