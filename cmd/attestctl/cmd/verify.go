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

package cmd

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	attestor "github.com/da-uptime/attestor-go"
	"github.com/da-uptime/attestor-go/prover/attest"
)

var salt string

func init() {
	cmd := cobra.Command{
		Use:     "verify [--data_dir=dir] [--salt=hex] [--pub_key=file]",
		Aliases: []string{"verify-batch"},
		Short:   "Verify the archived batch attestation against its bitmap",
		Args:    cobra.MaximumNArgs(0),
		Run: func(cmd *cobra.Command, _ []string) {
			runVerify()
		},
	}
	cmd.Flags().StringVar(&salt, "salt", "", "Bitmap salt as a hex string; must match the attestor's configuration")
	rootCmd.AddCommand(&cmd)
}

// runVerify runs the verify command.
func runVerify() {
	att := readAttestation()
	bitmap := readBitmap()
	batch := att.Batch

	if got, want := uint64(len(bitmap)), batch.N; got != want {
		klog.Exitf("Bitmap length %d does not match batch n=%d", got, want)
	}
	if got, want := bitmap.Good(), batch.Good; got != want {
		klog.Exitf("Bitmap good-count %d does not match batch good=%d", got, want)
	}

	saltBytes, err := hex.DecodeString(salt)
	if err != nil {
		klog.Exitf("Invalid --salt supplied: %v", err)
	}
	if got, want := attestor.HashBitmap(bitmap, saltBytes), batch.BitmapHash; got != want {
		klog.Exitf("Recomputed bitmap hash %s does not match batch hash %s (wrong salt?)", got, want)
	}

	fmt.Printf("Batch over window %s: n=%d good=%d threshold=%d\n", describeWindow(batch.Window), batch.N, batch.Good, batch.Threshold)
	fmt.Printf("Bitmap hash verified: %s\n", batch.BitmapHash)
	if batch.MeetsThreshold() {
		fmt.Println("Threshold met: window is compliant")
	} else {
		fmt.Println("Threshold NOT met: window is non-compliant")
	}

	if pubKey == "" {
		if att.Proof != nil || len(att.Signature) > 0 {
			fmt.Println("Attestation carries a proof/signature; supply --pub_key to verify it")
		}
		return
	}
	pub, err := attest.LoadVerifyingKey(pubKey)
	if err != nil {
		klog.Exit(err)
	}
	if len(att.Signature) > 0 {
		if !ed25519.Verify(pub, attestor.SerializeBatch(batch), att.Signature) {
			klog.Exit("Batch signature verification FAILED")
		}
		fmt.Println("Batch signature verified")
	}
	if att.Proof != nil {
		if !attest.NewVerifier(pub).Verify(att.Proof) {
			klog.Exit("Proof artifact verification FAILED")
		}
		if att.Proof.PublicInputs.BitmapHash != batch.BitmapHash {
			klog.Exit("Proof public inputs do not bind this batch's bitmap hash")
		}
		fmt.Println("Proof artifact verified")
	}
}
