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

// Package linear provides a small ridge regression model that satisfies
// model.Network, used to run the training pipeline end to end.
package linear

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/Strife-AI/Strife.ML/pkg/codec"
	"github.com/Strife-AI/Strife.ML/pkg/model"
	"github.com/Strife-AI/Strife.ML/pkg/samples"
)

// ErrDimension is returned when a row does not flatten to the regressor's
// input width.
var ErrDimension = errors.New("linear: input dimension mismatch")

// Features is the model input: one observation in a sequence.
type Features struct {
	Values []float64
}

func (f *Features) Serialize(s *codec.Serializer) {
	s.Float64s(&f.Values, "values")
}

// Target is the model output.
type Target struct {
	Value float64
}

func (t *Target) Serialize(s *codec.Serializer) {
	s.Float64(&t.Value, "value")
}

func featureValues(f Features) []float64 { return f.Values }

func sampleValues(s samples.Sample[Features, Target]) []float64 { return s.Input.Values }

// Regressor predicts a Target from a sequence of Features by flattening the
// sequence into one vector and taking its dot product with the weights. The
// last weight is the bias.
type Regressor struct {
	weights      []float64
	lambda       float64
	learningRate float64
}

var _ model.Network[Features, Target] = (*Regressor)(nil)

// NewRegressor returns a zero-weight regressor over inputs flattened values.
// lambda is the ridge penalty and learningRate the share of each batch's
// ridge solution blended into the weights.
func NewRegressor(inputs int, lambda, learningRate float64) (*Regressor, error) {
	if inputs <= 0 {
		return nil, fmt.Errorf("linear: inputs must be > 0, got %d", inputs)
	}
	if lambda <= 0 {
		return nil, fmt.Errorf("linear: lambda must be > 0, got %g", lambda)
	}
	if learningRate <= 0 || learningRate > 1 {
		return nil, fmt.Errorf("linear: learningRate must be in (0, 1], got %g", learningRate)
	}
	return &Regressor{
		weights:      make([]float64, inputs+1),
		lambda:       lambda,
		learningRate: learningRate,
	}, nil
}

// Inputs returns the flattened input width, excluding the bias.
func (r *Regressor) Inputs() int { return len(r.weights) - 1 }

// Weights returns a copy of the weights, bias last.
func (r *Regressor) Weights() []float64 {
	return append([]float64(nil), r.weights...)
}

// Decide implements model.Network.
func (r *Regressor) Decide(input samples.Grid[Features]) ([]Target, error) {
	w := mat.NewVecDense(len(r.weights), r.weights)
	out := make([]Target, input.Rows())
	x := make([]float64, len(r.weights))
	for row := 0; row < input.Rows(); row++ {
		if err := flatten(x, input.Row(row), featureValues); err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		out[row].Value = mat.Dot(w, mat.NewVecDense(len(x), x))
	}
	return out, nil
}

// TrainBatch implements model.Network. Each row is one example whose label is
// the output of its last sample. The reported loss is the mean squared error
// of the weights before the update.
func (r *Regressor) TrainBatch(batch samples.Batch[Features, Target]) (model.TrainingResult, error) {
	n, d := batch.Rows(), len(r.weights)
	x := mat.NewDense(n, d, nil)
	y := mat.NewVecDense(n, nil)
	for row := 0; row < n; row++ {
		seq := batch.Row(row)
		if err := flatten(x.RawRowView(row), seq, sampleValues); err != nil {
			return model.TrainingResult{}, fmt.Errorf("row %d: %w", row, err)
		}
		y.SetVec(row, seq[len(seq)-1].Output.Value)
	}

	w := mat.NewVecDense(d, r.weights)
	var residual mat.VecDense
	residual.MulVec(x, w)
	residual.SubVec(&residual, y)
	loss := mat.Dot(&residual, &residual) / float64(n)

	var gram mat.Dense
	gram.Mul(x.T(), x)
	for i := 0; i < d; i++ {
		gram.Set(i, i, gram.At(i, i)+r.lambda)
	}
	var xty mat.VecDense
	xty.MulVec(x.T(), y)

	var solution mat.VecDense
	if err := solution.SolveVec(&gram, &xty); err != nil {
		return model.TrainingResult{Loss: loss}, fmt.Errorf("linear: solving ridge system: %w", err)
	}

	// w aliases r.weights.
	w.AddScaledVec(w, r.learningRate, blendDelta(&solution, w))
	success := !math.IsNaN(loss) && !math.IsInf(loss, 0)
	return model.TrainingResult{Loss: loss, Success: success}, nil
}

// blendDelta returns target - current.
func blendDelta(target, current mat.Vector) *mat.VecDense {
	var delta mat.VecDense
	delta.SubVec(target, current)
	return &delta
}

// flatten concatenates the values of seq into dst and sets the trailing bias
// input. The values must fill dst exactly up to the bias.
func flatten[T any](dst []float64, seq []T, values func(T) []float64) error {
	width := len(dst) - 1
	n := 0
	for _, item := range seq {
		v := values(item)
		if n+len(v) > width {
			return fmt.Errorf("%w: more than %d values", ErrDimension, width)
		}
		n += copy(dst[n:], v)
	}
	if n != width {
		return fmt.Errorf("%w: got %d values, want %d", ErrDimension, n, width)
	}
	dst[width] = 1
	return nil
}

// Serialize writes or reads the regressor's parameters.
func (r *Regressor) Serialize(s *codec.Serializer) {
	s.Float64s(&r.weights, "weights").
		Float64(&r.lambda, "lambda").
		Float64(&r.learningRate, "learningRate")
}
