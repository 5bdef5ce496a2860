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

// Package prover defines the proof-generation capability consumed by the
// pipeline. Backends live in subpackages and are selected by configuration:
// noop (proofs disabled) and attest (signed attestation over the public
// inputs). Proof generation may take seconds and always runs off the
// sampling and batching timers; a failed proof never blocks a batch from
// being posted, it is just posted unproven.
package prover

import (
	"context"
	"fmt"

	attestor "github.com/da-uptime/attestor-go"
)

// GenerationError reports why a proof could not be produced for a batch.
// Recoverable: the batch remains eligible for posting without a proof.
type GenerationError struct {
	Reason string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("proof generation failed: %s", e.Reason)
}

// Prover produces a proof artifact for the statement "the committed bitmap
// contains at least Threshold ok-samples".
type Prover interface {
	// Prove checks the statement against the raw bitmap and, if it holds
	// and the bitmap is consistent with the committed digest, returns an
	// artifact binding the public inputs. Returns a *GenerationError when
	// the statement is false; a bitmap/digest mismatch is a caller error
	// reported the same way.
	Prove(ctx context.Context, bitmap attestor.Bitmap, pub attestor.PublicInputs) (*attestor.ProofArtifact, error)
}

// Verifier checks proof artifacts. Verify is a pure function: no side
// effects, false for any tampering with public inputs or proof bytes.
type Verifier interface {
	Verify(artifact *attestor.ProofArtifact) bool
}

// CheckStatement validates the preconditions shared by all backends:
// the bitmap length matches n, the bitmap hashes to the committed digest
// under salt, and the good-count meets the threshold.
func CheckStatement(bitmap attestor.Bitmap, pub attestor.PublicInputs, salt []byte) error {
	if got, want := uint64(len(bitmap)), pub.N; got != want {
		return &GenerationError{Reason: fmt.Sprintf("bitmap has %d samples, public inputs claim %d", got, want)}
	}
	if got := attestor.HashBitmap(bitmap, salt); got != pub.BitmapHash {
		return &GenerationError{Reason: fmt.Sprintf("bitmap hashes to %v, public inputs claim %v", got, pub.BitmapHash)}
	}
	if good := bitmap.Good(); good < pub.Threshold {
		return &GenerationError{Reason: fmt.Sprintf("good-count %d below threshold %d, statement is false", good, pub.Threshold)}
	}
	return nil
}
