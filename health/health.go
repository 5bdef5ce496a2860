// Copyright 2025 The attestor-go Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package health implements the health snapshot store: the most recently
// observed values of the monitored node's head and sampled-count counters.
// The ingestion adapter writes it, the sampler reads it. A single mutex
// guards the whole field group so a reader never observes a half-updated
// head/sampled-count/last-update triple.
package health

import (
	"sync"
	"time"
)

// Observation is a consistent point-in-time view of the store. Head and
// SampledCount are nil until the corresponding counter has been observed at
// least once.
type Observation struct {
	Head         *int64
	SampledCount *int64
	LastUpdate   time.Time
}

// Store holds the latest node-health observation.
type Store struct {
	mu           sync.Mutex
	head         *int64
	sampledCount *int64
	lastUpdate   time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// RecordObservation atomically updates the store with newly decoded counter
// values. A nil counter leaves the previous value in place, so partial
// telemetry payloads do not erase state. The update timestamp is always
// refreshed, even if both counters are nil, since any successfully decoded
// observation proves the reporter is alive.
func (s *Store) RecordObservation(head, sampledCount *int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if head != nil {
		v := *head
		s.head = &v
	}
	if sampledCount != nil {
		v := *sampledCount
		s.sampledCount = &v
	}
	s.lastUpdate = at
}

// Latest returns a consistent snapshot of the store. The second return value
// is false if no observation has ever been recorded.
func (s *Store) Latest() (Observation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastUpdate.IsZero() {
		return Observation{}, false
	}
	obs := Observation{LastUpdate: s.lastUpdate}
	if s.head != nil {
		v := *s.head
		obs.Head = &v
	}
	if s.sampledCount != nil {
		v := *s.sampledCount
		obs.SampledCount = &v
	}
	return obs, true
}
