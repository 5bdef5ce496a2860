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

// Package mock implements a Poster that never leaves the process. It mints
// deterministic commitments and monotonic heights so the rest of the
// pipeline behaves exactly as it would against a live node.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	attestor "github.com/da-uptime/attestor-go"
	"github.com/da-uptime/attestor-go/poster"
)

// Poster is the in-process ledger stand-in.
type Poster struct {
	mu        sync.Mutex
	namespace string
	height    uint64
	timeNow   func() time.Time
}

// New returns a mock Poster labelling entries with the given namespace.
func New(namespace string) *Poster {
	return &Poster{namespace: namespace, timeNow: time.Now}
}

// SubmitSample records one sample and returns its synthetic ledger entry.
func (p *Poster) SubmitSample(ctx context.Context, s attestor.Sample) (*attestor.LedgerEntry, error) {
	payload, err := poster.EncodeSample(s)
	if err != nil {
		return nil, err
	}
	return p.mint(payload), nil
}

// SubmitBatch records one batch attestation and returns its synthetic ledger
// entry.
func (p *Poster) SubmitBatch(ctx context.Context, att attestor.BatchAttestation) (*attestor.LedgerEntry, error) {
	payload, err := poster.EncodeBatch(att)
	if err != nil {
		return nil, err
	}
	return p.mint(payload), nil
}

// mint assigns the next height and a commitment derived from the payload, so
// reposting identical bytes yields an identical commitment.
func (p *Poster) mint(payload []byte) *attestor.LedgerEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.height++
	sum := blake3.Sum256(payload)
	return &attestor.LedgerEntry{
		Commitment:  sum[:],
		Height:      p.height,
		Namespace:   p.namespace,
		SubmittedAt: p.timeNow().Unix(),
	}
}
