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

package attestor

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// Domain separation prefixes for the canonical encodings. Fixed for the life
// of the wire format; changing any of them invalidates previously published
// digests and signatures.
const (
	batchSigPrefix     = "attestor/batch/v1"
	publicInputsPrefix = "attestor/public-inputs/v1"
	sampleLeafPrefix   = "attestor/sample-leaf/v1"
)

// HashBitmap computes the salted 256-bit BLAKE3 commitment over a window
// bitmap. The hash input is bitmap || salt; an empty salt is valid. Given the
// identical ordered bitmap and salt the output is bit-for-bit reproducible.
func HashBitmap(bitmap Bitmap, salt []byte) BitmapHash {
	h := blake3.New()
	h.Write(bitmap)
	h.Write(salt)
	var out BitmapHash
	copy(out[:], h.Sum(nil))
	return out
}

// SerializeBatch returns the canonical binary encoding of a Batch, used as
// the input for batch signatures. Fields are fixed-width big-endian in
// declaration order, preceded by a domain separation prefix.
func SerializeBatch(b Batch) []byte {
	buf := make([]byte, 0, len(batchSigPrefix)+5*8+BitmapHashSize)
	buf = append(buf, batchSigPrefix...)
	buf = binary.BigEndian.AppendUint64(buf, b.N)
	buf = binary.BigEndian.AppendUint64(buf, b.Good)
	buf = binary.BigEndian.AppendUint64(buf, b.Threshold)
	buf = binary.BigEndian.AppendUint64(buf, uint64(b.Window.Start))
	buf = binary.BigEndian.AppendUint64(buf, uint64(b.Window.End))
	buf = append(buf, b.BitmapHash[:]...)
	return buf
}

// SerializePublicInputs returns the canonical binary encoding of a proof's
// public inputs, used as the statement bound by proof artifacts.
func SerializePublicInputs(p PublicInputs) []byte {
	buf := make([]byte, 0, len(publicInputsPrefix)+2*8+BitmapHashSize)
	buf = append(buf, publicInputsPrefix...)
	buf = binary.BigEndian.AppendUint64(buf, p.N)
	buf = binary.BigEndian.AppendUint64(buf, p.Threshold)
	buf = append(buf, p.BitmapHash[:]...)
	return buf
}

// SerializeSample returns the canonical binary encoding of a Sample, used as
// the Merkle leaf input when computing a window's sample root. Optional
// counters are encoded with a presence byte so that an absent value is
// distinguishable from zero.
func SerializeSample(s Sample) []byte {
	buf := make([]byte, 0, len(sampleLeafPrefix)+1+8+2*9)
	buf = append(buf, sampleLeafPrefix...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(s.Timestamp))
	if s.OK {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendOptInt64(buf, s.Head)
	buf = appendOptInt64(buf, s.SampledCount)
	return buf
}

func appendOptInt64(buf []byte, v *int64) []byte {
	if v == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	return binary.BigEndian.AppendUint64(buf, uint64(*v))
}
