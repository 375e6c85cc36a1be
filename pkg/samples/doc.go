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

// Package samples stores labeled experience and indexes it for sequence
// selection.
//
// A Store keeps every sample serialized under a dense, increasing ID. Any
// number of GroupIndex instances observe a store and bucket the IDs by a key
// computed from each sample, so that training can draw runs of consecutive
// samples that end in a chosen group:
//
//	store := samples.NewStore[Obs, Action]("player", rng.New(seed))
//	byAction := samples.CreateGroupIndex[ActionKind](store)
//	byAction.SetSelector(func(s samples.Sample[Obs, Action]) ActionKind { return s.Output.Kind })
//
//	seq := make([]samples.Sample[Obs, Action], 4)
//	if byAction.TryPickRandomSequence(seq) { ... }
//
// Neither type is safe for concurrent use; the owner serializes access.
package samples
