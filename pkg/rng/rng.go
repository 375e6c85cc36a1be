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

// Package rng provides the seeded random source shared by sample selection.
package rng

import (
	"math/rand/v2"
	"sync"
	"time"
)

// RandomNumberGenerator draws uniform integers and floats. It is safe for
// concurrent use.
type RandomNumberGenerator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a generator seeded with seed. A zero seed is replaced by the
// current time so unseeded generators differ between runs.
func New(seed uint64) *RandomNumberGenerator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &RandomNumberGenerator{
		rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// RandInt returns a uniform integer in the closed range [min, max].
// It panics if max < min.
func (g *RandomNumberGenerator) RandInt(min, max int) int {
	if max < min {
		panic("rng: RandInt called with max < min")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return min + g.rnd.IntN(max-min+1)
}

// RandFloat returns a uniform float in the half-open range [min, max).
func (g *RandomNumberGenerator) RandFloat(min, max float64) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return min + g.rnd.Float64()*(max-min)
}
