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

// Package inclusion computes an RFC 6962 Merkle root over a window's
// serialized samples and produces inclusion proofs against it. The root
// travels inside the batch attestation, so any individually posted Layer-1
// sample can later be proven a member of a specific attested window.
package inclusion

import (
	"fmt"
	"math/bits"

	"github.com/transparency-dev/merkle/proof"
	"github.com/transparency-dev/merkle/rfc6962"

	attestor "github.com/da-uptime/attestor-go"
)

var hasher = rfc6962.DefaultHasher

// Root returns the RFC 6962 Merkle root over the samples in window order.
// For an empty window it returns the hasher's empty root.
func Root(samples []attestor.Sample) []byte {
	return subtreeRoot(leafHashes(samples))
}

// Prove returns the inclusion proof for the sample at index within the
// window. The proof verifies against Root(samples) for size len(samples).
func Prove(samples []attestor.Sample, index uint64) ([][]byte, error) {
	n := uint64(len(samples))
	if index >= n {
		return nil, fmt.Errorf("inclusion: index %d out of range for window of %d samples", index, n)
	}
	return subtreePath(leafHashes(samples), index), nil
}

// Verify checks that sample is the index-th of size leaves under root.
func Verify(root []byte, size, index uint64, sample attestor.Sample, proofNodes [][]byte) error {
	leaf := hasher.HashLeaf(attestor.SerializeSample(sample))
	return proof.VerifyInclusion(hasher, index, size, leaf, proofNodes, root)
}

func leafHashes(samples []attestor.Sample) [][]byte {
	leaves := make([][]byte, len(samples))
	for i, s := range samples {
		leaves[i] = hasher.HashLeaf(attestor.SerializeSample(s))
	}
	return leaves
}

// subtreeRoot computes MTH per RFC 6962 section 2.1: split at the largest
// power of two strictly smaller than the leaf count.
func subtreeRoot(leaves [][]byte) []byte {
	switch len(leaves) {
	case 0:
		return hasher.EmptyRoot()
	case 1:
		return leaves[0]
	}
	k := splitPoint(uint64(len(leaves)))
	return hasher.HashChildren(subtreeRoot(leaves[:k]), subtreeRoot(leaves[k:]))
}

// subtreePath computes PATH(index, leaves) per RFC 6962 section 2.1.1.
func subtreePath(leaves [][]byte, index uint64) [][]byte {
	if len(leaves) <= 1 {
		return nil
	}
	k := splitPoint(uint64(len(leaves)))
	if index < k {
		return append(subtreePath(leaves[:k], index), subtreeRoot(leaves[k:]))
	}
	return append(subtreePath(leaves[k:], index-k), subtreeRoot(leaves[:k]))
}

// splitPoint returns the largest power of two strictly smaller than n,
// for n >= 2.
func splitPoint(n uint64) uint64 {
	return uint64(1) << (bits.Len64(n-1) - 1)
}
