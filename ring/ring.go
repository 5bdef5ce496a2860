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

// Package ring implements the fixed-capacity sample buffer shared between
// the sampler (appends) and the batch generator (snapshot reads). Appends
// evict the oldest entry once the buffer is full; snapshots are
// copy-on-read so a read never blocks an append for longer than the copy.
package ring

import (
	"errors"
	"fmt"
	"sync"

	attestor "github.com/da-uptime/attestor-go"
)

// ErrTimestampRegression is returned by Append when a sample's timestamp is
// below that of the previously appended sample. Successive appends must carry
// non-decreasing timestamps; a regression indicates a programming defect in
// the caller, not a runtime state.
var ErrTimestampRegression = errors.New("ring: sample timestamp regressed")

// Buffer is a bounded FIFO of samples.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	entries  []attestor.Sample
	start    int
	count    int
}

// NewBuffer creates a Buffer with the given fixed capacity.
func NewBuffer(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("ring: capacity is %d, want > 0", capacity)
	}
	return &Buffer{
		capacity: capacity,
		entries:  make([]attestor.Sample, capacity),
	}, nil
}

// Append adds a sample, evicting the oldest entry if the buffer is full.
// O(1), no allocation. The only error condition is a timestamp regression.
func (b *Buffer) Append(s attestor.Sample) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count > 0 {
		last := b.entries[(b.start+b.count-1)%b.capacity]
		if s.Timestamp < last.Timestamp {
			return fmt.Errorf("%w: %d after %d", ErrTimestampRegression, s.Timestamp, last.Timestamp)
		}
	}
	if b.count == b.capacity {
		b.entries[b.start] = s
		b.start = (b.start + 1) % b.capacity
		return nil
	}
	b.entries[(b.start+b.count)%b.capacity] = s
	b.count++
	return nil
}

// Snapshot returns an ordered copy of the current contents, oldest first.
// The returned slice is owned by the caller.
func (b *Buffer) Snapshot() []attestor.Sample {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]attestor.Sample, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.entries[(b.start+i)%b.capacity]
	}
	return out
}

// Len reports the current occupancy.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Capacity reports the fixed capacity.
func (b *Buffer) Capacity() int {
	return b.capacity
}
