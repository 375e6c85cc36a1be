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

package model

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strife-AI/Strife.ML/internal/metrics"
)

// Published is a model together with its publication metadata.
type Published[M any] struct {
	Model M
	// Version increases by one with every publication to the same slot,
	// starting at 1.
	Version uint64
	// RunID identifies the training run that produced the model.
	RunID       uuid.UUID
	PublishedAt time.Time
}

// Slot holds at most one published model that no decider has claimed yet.
// Publishing over an unclaimed model replaces it.
type Slot[M any] struct {
	onCreated func(Published[M])

	mu      sync.Mutex
	pending *Published[M]
	version uint64
}

// NewSlot returns an empty slot. onCreated, if not nil, is called for every
// publication while the slot lock is held, so it must be short and must not
// call back into the slot.
func NewSlot[M any](onCreated func(Published[M])) *Slot[M] {
	return &Slot[M]{onCreated: onCreated}
}

// Publish makes m the pending model under a fresh run ID.
func (s *Slot[M]) Publish(m M) Published[M] {
	return s.PublishRun(m, uuid.New())
}

// PublishRun makes m, produced by training run runID, the pending model.
func (s *Slot[M]) PublishRun(m M, runID uuid.UUID) Published[M] {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	p := Published[M]{
		Model:       m,
		Version:     s.version,
		RunID:       runID,
		PublishedAt: time.Now(),
	}
	discarded := s.pending != nil
	s.pending = &p
	metrics.RecordModelPublished(discarded)

	if s.onCreated != nil {
		s.onCreated(p)
	}
	return p
}

// TryClaim takes the pending model, leaving the slot empty. Every published
// model is returned by at most one call.
func (s *Slot[M]) TryClaim() (Published[M], bool) {
	s.mu.Lock()
	p := s.pending
	s.pending = nil
	s.mu.Unlock()

	if p == nil {
		return Published[M]{}, false
	}
	metrics.RecordModelClaimed()
	return *p, true
}

// Pending reports whether a model is waiting to be claimed.
func (s *Slot[M]) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Version returns the version of the most recent publication, 0 if none.
func (s *Slot[M]) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}
