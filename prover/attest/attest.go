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

// Package attest implements the attestation prover backend: the proof
// artifact is an Ed25519 signature over the canonical public inputs, issued
// only after the prover has locally verified the threshold statement against
// the raw bitmap. Verifiers trust the attestor key the way CT clients trust
// a log key; the bitmap itself is never exposed beyond its digest. A
// succinct zero-knowledge backend can replace this one behind the same
// interface without touching the pipeline.
package attest

import (
	"context"
	"crypto/ed25519"

	attestor "github.com/da-uptime/attestor-go"
	"github.com/da-uptime/attestor-go/prover"
)

// Prover signs public-input statements it has verified.
type Prover struct {
	key  ed25519.PrivateKey
	salt []byte
}

// NewProver creates a Prover signing with key. salt must match the batcher's
// bitmap salt, otherwise every digest consistency check fails.
func NewProver(key ed25519.PrivateKey, salt []byte) *Prover {
	return &Prover{key: key, salt: salt}
}

// Prove checks the statement and returns a signed artifact.
func (p *Prover) Prove(_ context.Context, bitmap attestor.Bitmap, pub attestor.PublicInputs) (*attestor.ProofArtifact, error) {
	if err := prover.CheckStatement(bitmap, pub, p.salt); err != nil {
		return nil, err
	}
	return &attestor.ProofArtifact{
		PublicInputs: pub,
		Proof:        ed25519.Sign(p.key, attestor.SerializePublicInputs(pub)),
	}, nil
}

// Verifier checks artifacts produced by a Prover holding the corresponding
// private key.
type Verifier struct {
	pub ed25519.PublicKey
}

// NewVerifier creates a Verifier trusting the given attestor public key.
func NewVerifier(pub ed25519.PublicKey) *Verifier {
	return &Verifier{pub: pub}
}

// Verify reports whether the artifact's signature binds its public inputs.
// Pure: no side effects, false for any tampering with the inputs or the
// proof bytes.
func (v *Verifier) Verify(artifact *attestor.ProofArtifact) bool {
	if artifact == nil || len(artifact.Proof) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(v.pub, attestor.SerializePublicInputs(artifact.PublicInputs), artifact.Proof)
}
