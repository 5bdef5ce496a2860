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

// Package cmd implements subcommands of attestctl, the command-line utility
// for inspecting and verifying attestor output.
package cmd

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	attestor "github.com/da-uptime/attestor-go"
)

var (
	dataDir string
	pubKey  string
)

func init() {
	// Add flags added with "flag" package, including klog, to Cobra flag set.
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&dataDir, "data_dir", "data", "Directory holding attestor output (batch.json, bitmap.hex, samples.json)")
	flags.StringVar(&pubKey, "pub_key", "", "Name of file containing the attestor's public key")
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "attestctl",
	Short: "A command line utility for verifying liveness attestations",

	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		flag.Parse()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. It needs to be called exactly once by main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		klog.Fatal(err)
	}
}

// readAttestation loads batch.json from the data directory.
func readAttestation() attestor.BatchAttestation {
	path := filepath.Join(dataDir, "batch.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		klog.Exitf("Failed to read %q: %v", path, err)
	}
	var att attestor.BatchAttestation
	if err := json.Unmarshal(raw, &att); err != nil {
		klog.Exitf("Failed to parse %q: %v", path, err)
	}
	return att
}

// readBitmap loads bitmap.hex from the data directory.
func readBitmap() attestor.Bitmap {
	path := filepath.Join(dataDir, "bitmap.hex")
	raw, err := os.ReadFile(path)
	if err != nil {
		klog.Exitf("Failed to read %q: %v", path, err)
	}
	bitmap, err := attestor.BitmapFromHex(strings.TrimSpace(string(raw)))
	if err != nil {
		klog.Exitf("Failed to parse %q: %v", path, err)
	}
	return bitmap
}

// readSamples loads samples.json from the data directory.
func readSamples() []attestor.Sample {
	path := filepath.Join(dataDir, "samples.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		klog.Exitf("Failed to read %q: %v", path, err)
	}
	var samples []attestor.Sample
	if err := json.Unmarshal(raw, &samples); err != nil {
		klog.Exitf("Failed to parse %q: %v", path, err)
	}
	return samples
}

func describeWindow(w attestor.Window) string {
	return fmt.Sprintf("[%d, %d]", w.Start, w.End)
}
