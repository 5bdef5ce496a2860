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

// Package da implements a Poster backed by a data-availability node's blob
// API.
package da

import (
	"context"
	"time"

	attestor "github.com/da-uptime/attestor-go"
	"github.com/da-uptime/attestor-go/daclient"
	"github.com/da-uptime/attestor-go/poster"
)

// Poster submits envelopes as blobs under one namespace.
type Poster struct {
	client    *daclient.Client
	namespace string
	timeNow   func() time.Time
}

// New returns a Poster submitting through client under the given namespace.
func New(client *daclient.Client, namespace string) *Poster {
	return &Poster{client: client, namespace: namespace, timeNow: time.Now}
}

// SubmitSample posts one sample blob.
func (p *Poster) SubmitSample(ctx context.Context, s attestor.Sample) (*attestor.LedgerEntry, error) {
	payload, err := poster.EncodeSample(s)
	if err != nil {
		return nil, err
	}
	return p.submit(ctx, payload)
}

// SubmitBatch posts one batch attestation blob.
func (p *Poster) SubmitBatch(ctx context.Context, att attestor.BatchAttestation) (*attestor.LedgerEntry, error) {
	payload, err := poster.EncodeBatch(att)
	if err != nil {
		return nil, err
	}
	return p.submit(ctx, payload)
}

func (p *Poster) submit(ctx context.Context, payload []byte) (*attestor.LedgerEntry, error) {
	result, err := p.client.SubmitBlob(ctx, p.namespace, payload)
	if err != nil {
		return nil, err
	}
	return &attestor.LedgerEntry{
		Commitment:  result.Commitment,
		Height:      result.Height,
		Namespace:   p.namespace,
		SubmittedAt: p.timeNow().Unix(),
	}, nil
}
