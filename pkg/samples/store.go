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
	"fmt"

	"github.com/Strife-AI/Strife.ML/internal/metrics"
	"github.com/Strife-AI/Strife.ML/pkg/codec"
	"github.com/Strife-AI/Strife.ML/pkg/rng"
)

// ID identifies a sample within its store. IDs are dense and increase with
// insertion order starting at 0.
type ID int

// Sample is one labeled observation.
type Sample[I, O any] struct {
	Input  I
	Output O
}

// Observer is notified of every sample appended to a store it is attached to.
type Observer[I, O any] interface {
	OnSample(sample Sample[I, O], id ID)
}

// Reader gives read access to stored samples by ID.
type Reader[I, O any] interface {
	TryGetSampleByID(id ID, out *Sample[I, O]) bool
	Len() int
	RNG() *rng.RandomNumberGenerator
}

// Store is an append-only collection of serialized samples.
type Store[I, O any, PI codec.Pointer[I], PO codec.Pointer[O]] struct {
	name       string
	rng        *rng.RandomNumberGenerator
	serialized [][]byte
	observers  []Observer[I, O]
	schema     *codec.Schema
}

// NewStore returns an empty store. The generator is shared with the group
// indices built on the store.
func NewStore[I, O any, PI codec.Pointer[I], PO codec.Pointer[O]](name string, r *rng.RandomNumberGenerator) *Store[I, O, PI, PO] {
	return &Store[I, O, PI, PO]{name: name, rng: r}
}

func (s *Store[I, O, PI, PO]) Name() string { return s.name }

// RNG returns the generator used for random selection over this store.
func (s *Store[I, O, PI, PO]) RNG() *rng.RandomNumberGenerator { return s.rng }

// Len returns the number of stored samples, which is also the next free ID.
func (s *Store[I, O, PI, PO]) Len() int { return len(s.serialized) }

// Schema describes the serialized layout of a sample, recorded when the
// first sample was added. It is nil for an empty store.
func (s *Store[I, O, PI, PO]) Schema() *codec.Schema { return s.schema }

// Attach registers an observer. Observers see samples added after they were
// attached, in attach order.
func (s *Store[I, O, PI, PO]) Attach(o Observer[I, O]) {
	s.observers = append(s.observers, o)
}

// AddSample serializes sample, stores it and returns its ID.
func (s *Store[I, O, PI, PO]) AddSample(sample Sample[I, O]) ID {
	var schema *codec.Schema
	if s.schema == nil {
		schema = codec.NewSchema()
	}
	w := codec.NewWriter(schema)
	// Write mode only reads through the pointers.
	PI(&sample.Input).Serialize(w)
	PO(&sample.Output).Serialize(w)
	if schema != nil {
		s.schema = schema
	}

	id := ID(len(s.serialized))
	s.serialized = append(s.serialized, w.Bytes())
	metrics.RecordSampleAdded(s.name)

	for _, o := range s.observers {
		o.OnSample(sample, id)
	}
	return id
}

// TryGetSampleByID decodes sample id into out. It returns false if id is
// unknown or the stored bytes could not be decoded, in which case out may be
// partially written.
func (s *Store[I, O, PI, PO]) TryGetSampleByID(id ID, out *Sample[I, O]) bool {
	if id < 0 || int(id) >= len(s.serialized) {
		return false
	}
	r := codec.NewReader(s.serialized[id])
	PI(&out.Input).Serialize(r)
	PO(&out.Output).Serialize(r)
	return !r.HadError()
}

// MustGetSample decodes sample id and panics if that fails.
func (s *Store[I, O, PI, PO]) MustGetSample(id ID) Sample[I, O] {
	var out Sample[I, O]
	if !s.TryGetSampleByID(id, &out) {
		panic(fmt.Sprintf("samples: store %q has no decodable sample %d (len %d)", s.name, id, len(s.serialized)))
	}
	return out
}

// CreateGroupIndex returns a GroupIndex over s, attached so that it observes
// every sample added from now on.
func CreateGroupIndex[K comparable, I, O any, PI codec.Pointer[I], PO codec.Pointer[O]](s *Store[I, O, PI, PO]) *GroupIndex[I, O, K] {
	g := NewGroupIndex[K](Reader[I, O](s))
	s.Attach(g)
	return g
}
