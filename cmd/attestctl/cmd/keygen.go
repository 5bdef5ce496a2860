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
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/da-uptime/attestor-go/prover/attest"
)

var keyOut string

func init() {
	cmd := cobra.Command{
		Use:   "keygen [--out=prefix]",
		Short: "Generate an Ed25519 signing key pair for the attestation prover",
		Args:  cobra.MaximumNArgs(0),
		Run: func(cmd *cobra.Command, _ []string) {
			runKeygen()
		},
	}
	cmd.Flags().StringVar(&keyOut, "out", "attestor", "Prefix for the generated <prefix>.pem and <prefix>.pub.pem files")
	rootCmd.AddCommand(&cmd)
}

// runKeygen runs the keygen command.
func runKeygen() {
	privPEM, pubPEM, err := attest.GenerateKeyPair()
	if err != nil {
		klog.Exitf("Failed to generate key pair: %v", err)
	}
	privPath := keyOut + ".pem"
	pubPath := keyOut + ".pub.pem"
	if err := os.WriteFile(privPath, privPEM, 0600); err != nil {
		klog.Exitf("Failed to write %q: %v", privPath, err)
	}
	if err := os.WriteFile(pubPath, pubPEM, 0644); err != nil {
		klog.Exitf("Failed to write %q: %v", pubPath, err)
	}
	fmt.Printf("Wrote signing key to %s and public key to %s\n", privPath, pubPath)
}
