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

// Package attestor holds the core data types shared by the liveness
// attestation pipeline: samples emitted by the sampler, batches produced by
// the batch generator, proof artifacts and ledger entries. All types here are
// immutable once created; the pipeline packages pass them by value.
package attestor

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// BitmapHashSize is the size of a bitmap commitment digest in bytes.
const BitmapHashSize = 32

// ReasonCode identifies the outcome class of one liveness evaluation.
type ReasonCode uint8

// ReasonCode constants, in predicate priority order.
const (
	ReasonNoData ReasonCode = iota
	ReasonStale
	ReasonFirstSample
	ReasonAdvanced
	ReasonFresh
	ReasonStuck
	ReasonHeadersNotAdvanced
)

func (c ReasonCode) String() string {
	switch c {
	case ReasonNoData:
		return "no_data"
	case ReasonStale:
		return "stale"
	case ReasonFirstSample:
		return "first_sample"
	case ReasonAdvanced:
		return "advanced"
	case ReasonFresh:
		return "fresh"
	case ReasonStuck:
		return "stuck"
	case ReasonHeadersNotAdvanced:
		return "headers_not_advanced"
	default:
		return fmt.Sprintf("UnknownReasonCode(%d)", c)
	}
}

// Reason is the enumerated tag attached to a Sample, optionally qualified by
// the head advancement delta (advanced) or the snapshot age (fresh).
type Reason struct {
	Code ReasonCode
	// HeadDelta is the head advancement observed since the previous tick.
	// Only meaningful when Code == ReasonAdvanced.
	HeadDelta int64
	// AgeSecs is the age of the health snapshot at evaluation time.
	// Only meaningful when Code == ReasonFresh.
	AgeSecs int64
}

func (r Reason) String() string {
	switch r.Code {
	case ReasonAdvanced:
		return fmt.Sprintf("advanced(+%d)", r.HeadDelta)
	case ReasonFresh:
		return fmt.Sprintf("fresh(%ds)", r.AgeSecs)
	default:
		return r.Code.String()
	}
}

// MarshalJSON implements the json.Marshaler interface.
func (r Reason) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (r *Reason) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("reason is not a JSON string: %v", err)
	}
	parsed, err := ParseReason(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseReason parses the string form produced by Reason.String.
func ParseReason(s string) (Reason, error) {
	switch {
	case strings.HasPrefix(s, "advanced(+") && strings.HasSuffix(s, ")"):
		delta, err := strconv.ParseInt(s[len("advanced(+"):len(s)-1], 10, 64)
		if err != nil {
			return Reason{}, fmt.Errorf("malformed advanced reason %q: %v", s, err)
		}
		return Reason{Code: ReasonAdvanced, HeadDelta: delta}, nil
	case strings.HasPrefix(s, "fresh(") && strings.HasSuffix(s, "s)"):
		age, err := strconv.ParseInt(s[len("fresh("):len(s)-2], 10, 64)
		if err != nil {
			return Reason{}, fmt.Errorf("malformed fresh reason %q: %v", s, err)
		}
		return Reason{Code: ReasonFresh, AgeSecs: age}, nil
	}
	for _, c := range []ReasonCode{ReasonNoData, ReasonStale, ReasonFirstSample, ReasonStuck, ReasonHeadersNotAdvanced} {
		if s == c.String() {
			return Reason{Code: c}, nil
		}
	}
	return Reason{}, fmt.Errorf("unknown reason %q", s)
}

// Sample is the outcome of one liveness evaluation at one sampler tick.
// Head and SampledCount record the raw counter values that the evaluation was
// based on; they are nil when the health snapshot had no data for them.
type Sample struct {
	Timestamp    int64  `json:"timestamp"`
	Head         *int64 `json:"head"`
	SampledCount *int64 `json:"sampled_count"`
	OK           bool   `json:"ok"`
	Reason       Reason `json:"reason"`
}

// Window is the time span summarized by one Batch, derived from the first and
// last sample timestamps of the batched snapshot.
type Window struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// BitmapHash is the salted 256-bit digest committing to a window's bitmap.
type BitmapHash [BitmapHashSize]byte

func (h BitmapHash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalJSON implements the json.Marshaler interface.
func (h BitmapHash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (h *BitmapHash) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("bitmap_hash is not a JSON string: %v", err)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("bitmap_hash is not valid hex: %v", err)
	}
	if len(raw) != BitmapHashSize {
		return fmt.Errorf("bitmap_hash has length %d, want %d", len(raw), BitmapHashSize)
	}
	copy(h[:], raw)
	return nil
}

// Bitmap encodes the ok-bits of a window, one byte per sample in window
// order, 0x01 for ok and 0x00 for fail.
type Bitmap []byte

// Good returns the number of ok samples encoded in the bitmap.
func (b Bitmap) Good() uint64 {
	var good uint64
	for _, v := range b {
		if v == 1 {
			good++
		}
	}
	return good
}

// Hex returns the hex encoding of the bitmap ("01"/"00" per sample).
func (b Bitmap) Hex() string {
	return hex.EncodeToString(b)
}

// BitmapFromHex decodes a bitmap from its hex encoding.
func BitmapFromHex(s string) (Bitmap, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid bitmap hex: %v", err)
	}
	for _, v := range raw {
		if v > 1 {
			return nil, fmt.Errorf("invalid bitmap byte 0x%02x, want 0x00 or 0x01", v)
		}
	}
	return Bitmap(raw), nil
}

// BitmapFromSamples builds the bitmap for an ordered sample sequence.
func BitmapFromSamples(samples []Sample) Bitmap {
	bm := make(Bitmap, len(samples))
	for i, s := range samples {
		if s.OK {
			bm[i] = 1
		}
	}
	return bm
}

// Batch is the statistical digest of one window of samples. Derived data,
// recomputed each batching period and never mutated after creation.
type Batch struct {
	N          uint64     `json:"n"`
	Good       uint64     `json:"good"`
	Threshold  uint64     `json:"threshold"`
	BitmapHash BitmapHash `json:"bitmap_hash"`
	Window     Window     `json:"window"`
}

// MeetsThreshold reports whether the batch's good-count satisfies its
// threshold, i.e. whether the monitored node was compliant for the window.
func (b Batch) MeetsThreshold() bool {
	return b.Good >= b.Threshold
}

// PublicInputs are the public values bound by a proof artifact.
type PublicInputs struct {
	N          uint64     `json:"n"`
	Threshold  uint64     `json:"threshold"`
	BitmapHash BitmapHash `json:"bitmap_hash"`
}

// ProofArtifact is a succinct proof that a batch's good-count meets its
// threshold, binding the public inputs without revealing the bitmap beyond
// its digest. Proof is an opaque serialized blob whose layout is owned by the
// prover backend that produced it.
type ProofArtifact struct {
	PublicInputs PublicInputs `json:"public_inputs"`
	Proof        []byte       `json:"proof"`
}

// BatchAttestation is the Layer-2 payload posted to the ledger: the batch
// digest plus the optional proof artifact and an optional signature over the
// canonical batch encoding. SampleRoot is the RFC 6962 Merkle root over the
// window's serialized samples, tying the Layer-1 sample stream to this batch.
type BatchAttestation struct {
	Batch      Batch          `json:"batch"`
	SampleRoot []byte         `json:"sample_root,omitempty"`
	Proof      *ProofArtifact `json:"proof,omitempty"`
	Signature  []byte         `json:"signature,omitempty"`
}

// LedgerEntry is the commitment handle returned after a successful submission
// to the append-only ledger. Once returned it must be treated as immutable
// and retrievable by (Namespace, Commitment) or (Namespace, Height).
type LedgerEntry struct {
	Commitment  []byte `json:"commitment"`
	Height      uint64 `json:"height"`
	Namespace   string `json:"namespace"`
	SubmittedAt int64  `json:"submitted_at"`
}

// Payload type tags used for ledger submissions.
const (
	TypeSample           = "sample"
	TypeBatchAttestation = "batch_attestation"
)
