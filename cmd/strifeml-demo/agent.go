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

package main

import (
	"github.com/Strife-AI/Strife.ML/pkg/linear"
	"github.com/Strife-AI/Strife.ML/pkg/rng"
	"github.com/Strife-AI/Strife.ML/pkg/samples"
)

type sample = samples.Sample[linear.Features, linear.Target]

// agent simulates an environment whose reward is a fixed linear function of
// the latest observation plus noise.
type agent struct {
	rng     *rng.RandomNumberGenerator
	weights []float64
	bias    float64
	noise   float64
}

func newAgent(r *rng.RandomNumberGenerator, features int, noise float64) *agent {
	a := &agent{rng: r, weights: make([]float64, features), noise: noise}
	for i := range a.weights {
		a.weights[i] = r.RandFloat(-2, 2)
	}
	a.bias = r.RandFloat(-1, 1)
	return a
}

func (a *agent) observe() linear.Features {
	values := make([]float64, len(a.weights))
	for i := range values {
		values[i] = a.rng.RandFloat(-1, 1)
	}
	return linear.Features{Values: values}
}

// truth is the noiseless reward of an observation.
func (a *agent) truth(f linear.Features) float64 {
	y := a.bias
	for i, w := range a.weights {
		y += w * f.Values[i]
	}
	return y
}

func (a *agent) step() sample {
	obs := a.observe()
	y := a.truth(obs)
	if a.noise > 0 {
		y += a.rng.RandFloat(-a.noise, a.noise)
	}
	return sample{Input: obs, Output: linear.Target{Value: y}}
}
