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
	"bytes"
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	attestor "github.com/da-uptime/attestor-go"
	"github.com/da-uptime/attestor-go/inclusion"
)

var sampleTimestamp int64

func init() {
	cmd := cobra.Command{
		Use:     "inclusion --timestamp=ts [--data_dir=dir]",
		Aliases: []string{"inclusion-proof", "prove-inclusion"},
		Short:   "Prove that an archived sample is included in the batch's sample root",
		Args:    cobra.MaximumNArgs(0),
		Run: func(cmd *cobra.Command, _ []string) {
			runInclusion()
		},
	}
	cmd.Flags().Int64Var(&sampleTimestamp, "timestamp", 0, "Timestamp of the archived sample to prove")
	rootCmd.AddCommand(&cmd)
}

// runInclusion runs the inclusion command.
func runInclusion() {
	att := readAttestation()
	if len(att.SampleRoot) == 0 {
		klog.Exit("Archived attestation carries no sample root")
	}

	// Reconstruct the batch's window from the sample archive.
	all := readSamples()
	var window []attestor.Sample
	index := -1
	for _, s := range all {
		if s.Timestamp < att.Batch.Window.Start || s.Timestamp > att.Batch.Window.End {
			continue
		}
		if s.Timestamp == sampleTimestamp {
			index = len(window)
		}
		window = append(window, s)
	}
	if uint64(len(window)) != att.Batch.N {
		klog.Exitf("Archive holds %d samples in window %s, batch says n=%d", len(window), describeWindow(att.Batch.Window), att.Batch.N)
	}
	if index < 0 {
		klog.Exitf("No archived sample at timestamp %d within window %s", sampleTimestamp, describeWindow(att.Batch.Window))
	}

	root := inclusion.Root(window)
	if !bytes.Equal(root, att.SampleRoot) {
		klog.Exitf("Recomputed sample root %x does not match attested root %x", root, att.SampleRoot)
	}

	path, err := inclusion.Prove(window, uint64(index))
	if err != nil {
		klog.Exitf("Failed to build inclusion proof: %v", err)
	}
	if err := inclusion.Verify(root, uint64(len(window)), uint64(index), window[index], path); err != nil {
		klog.Exitf("Inclusion proof verification FAILED: %v", err)
	}

	fmt.Printf("Sample at %d is leaf %d of %d under root %x\n", sampleTimestamp, index, len(window), root)
	for i, node := range path {
		fmt.Printf("  proof[%d]: %x\n", i, node)
	}
	fmt.Println("Inclusion proof verified")
}
