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

package samples

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/Strife-AI/Strife.ML/internal/logging"
	"github.com/Strife-AI/Strife.ML/pkg/codec"
	"github.com/Strife-AI/Strife.ML/pkg/rng"
)

// ErrDuplicateSampleSet is returned when a sample set name is already taken.
var ErrDuplicateSampleSet = errors.New("samples: sample set already exists")

// Repository owns named sample sets that share one random number generator.
type Repository[I, O any, PI codec.Pointer[I], PO codec.Pointer[O]] struct {
	rng *rng.RandomNumberGenerator

	mu   sync.RWMutex
	sets map[string]*Store[I, O, PI, PO]
}

func NewRepository[I, O any, PI codec.Pointer[I], PO codec.Pointer[O]](r *rng.RandomNumberGenerator) *Repository[I, O, PI, PO] {
	return &Repository[I, O, PI, PO]{
		rng:  r,
		sets: make(map[string]*Store[I, O, PI, PO]),
	}
}

// CreateSampleSet creates an empty store registered under name.
func (r *Repository[I, O, PI, PO]) CreateSampleSet(name string) (*Store[I, O, PI, PO], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sets[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateSampleSet, name)
	}
	s := NewStore[I, O, PI, PO](name, r.rng)
	r.sets[name] = s
	ctrl.Log.WithName("samples").V(logging.DEBUG).Info("Sample set created", "name", name)
	return s, nil
}

// SampleSet returns the store registered under name.
func (r *Repository[I, O, PI, PO]) SampleSet(name string) (*Store[I, O, PI, PO], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sets[name]
	return s, ok
}

// Names returns the registered set names in sorted order.
func (r *Repository[I, O, PI, PO]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sets))
	for name := range r.sets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
