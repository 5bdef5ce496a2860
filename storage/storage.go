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

// Package storage defines the local archive interface, which allows the
// pipeline to keep its samples, batches and ledger receipts in different
// backends (flat files, SQLite, MySQL, PostgreSQL) selected by
// configuration.
package storage

import (
	"context"

	attestor "github.com/da-uptime/attestor-go"
)

// Archive persists the pipeline's local records. Implementations must
// tolerate replays: saving a batch with an already-archived
// (window, bitmap_hash) pair is a no-op, mirroring the ledger-side
// deduplication contract.
type Archive interface {
	// AppendSample archives one emitted sample.
	AppendSample(ctx context.Context, s attestor.Sample) error

	// SaveBatch archives a batch attestation together with its raw bitmap.
	SaveBatch(ctx context.Context, att attestor.BatchAttestation, bitmap attestor.Bitmap) error

	// AppendLedgerEntry archives the commitment handle returned by a
	// successful ledger submission. kind is one of the payload type tags.
	AppendLedgerEntry(ctx context.Context, kind string, entry attestor.LedgerEntry) error

	// Close releases the backend's resources.
	Close() error
}
