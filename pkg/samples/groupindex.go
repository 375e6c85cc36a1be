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
	"slices"
)

// GroupIndex buckets the IDs of a store's samples by a key computed from each
// sample.
type GroupIndex[I, O any, K comparable] struct {
	owner    Reader[I, O]
	selector func(Sample[I, O]) K

	groups map[K][]ID
	// keys in first-seen order, so selection is reproducible for a seed
	keys []K

	candidates [][]ID
}

// NewGroupIndex returns an index reading samples from owner. It does nothing
// until a selector is set and it is attached to the owner's store.
func NewGroupIndex[K comparable, I, O any](owner Reader[I, O]) *GroupIndex[I, O, K] {
	return &GroupIndex[I, O, K]{
		owner:  owner,
		groups: make(map[K][]ID),
	}
}

// SetSelector sets the function computing a sample's group key. Samples
// observed before the selector was set are not indexed.
func (g *GroupIndex[I, O, K]) SetSelector(selector func(Sample[I, O]) K) *GroupIndex[I, O, K] {
	g.selector = selector
	return g
}

// OnSample implements Observer.
func (g *GroupIndex[I, O, K]) OnSample(sample Sample[I, O], id ID) {
	if g.selector == nil {
		return
	}
	key := g.selector(sample)
	ids, ok := g.groups[key]
	if !ok {
		g.keys = append(g.keys, key)
	}
	g.groups[key] = append(ids, id)
}

// Groups returns the known keys in the order they were first seen.
func (g *GroupIndex[I, O, K]) Groups() []K {
	return slices.Clone(g.keys)
}

// GroupIDs returns a copy of the ascending IDs indexed under key.
func (g *GroupIndex[I, O, K]) GroupIDs(key K) []ID {
	return slices.Clone(g.groups[key])
}

// PickRandomSequence chooses length consecutive IDs ending at an ID of a
// randomly chosen group. It returns false if no group has a member with at
// least length-1 samples before it.
//
// Only the final ID is guaranteed to belong to the chosen group; its
// predecessors are whatever the store holds at those IDs. The end ID is not
// uniformly distributed: the search draws from a shrinking suffix of the
// group, so later members are favoured.
func (g *GroupIndex[I, O, K]) PickRandomSequence(length int) ([]ID, bool) {
	if length <= 0 {
		panic(fmt.Sprintf("samples: invalid sequence length %d", length))
	}
	minID := ID(length - 1)

	g.candidates = g.candidates[:0]
	for _, key := range g.keys {
		ids := g.groups[key]
		if len(ids) == 0 || ids[len(ids)-1] < minID {
			continue
		}
		g.candidates = append(g.candidates, ids)
	}
	if len(g.candidates) == 0 {
		return nil, false
	}

	r := g.owner.RNG()
	group := g.candidates[r.RandInt(0, len(g.candidates)-1)]

	endID, found := ID(0), false
	for start := 0; start < len(group); {
		i := r.RandInt(start, len(group)-1)
		if group[i] < minID {
			start = i + 1
			continue
		}
		endID, found = group[i], true
		break
	}
	if !found {
		// The last member of a candidate group always qualifies.
		panic("samples: no end id found in a candidate group")
	}

	ids := make([]ID, length)
	for i := range ids {
		ids[i] = endID - ID(length-1-i)
	}
	return ids, true
}

// TryPickRandomSequence fills out with a sequence chosen by
// PickRandomSequence(len(out)). It panics if the owning store cannot decode
// one of the chosen IDs.
func (g *GroupIndex[I, O, K]) TryPickRandomSequence(out []Sample[I, O]) bool {
	ids, ok := g.PickRandomSequence(len(out))
	if !ok {
		return false
	}
	for i, id := range ids {
		if !g.owner.TryGetSampleByID(id, &out[i]) {
			panic(fmt.Sprintf("samples: sample %d selected for a sequence cannot be read (store len %d)", id, g.owner.Len()))
		}
	}
	return true
}
