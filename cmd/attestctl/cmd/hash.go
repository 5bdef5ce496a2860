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
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	attestor "github.com/da-uptime/attestor-go"
)

var hashSalt string

func init() {
	cmd := cobra.Command{
		Use:     "hash [--data_dir=dir] [--salt=hex]",
		Aliases: []string{"bitmap-hash"},
		Short:   "Recompute the salted hash of the archived bitmap",
		Args:    cobra.MaximumNArgs(0),
		Run: func(cmd *cobra.Command, _ []string) {
			runHash()
		},
	}
	cmd.Flags().StringVar(&hashSalt, "salt", "", "Bitmap salt as a hex string; must match the attestor's configuration")
	rootCmd.AddCommand(&cmd)
}

// runHash runs the hash command.
func runHash() {
	bitmap := readBitmap()
	saltBytes, err := hex.DecodeString(hashSalt)
	if err != nil {
		klog.Exitf("Invalid --salt supplied: %v", err)
	}
	fmt.Printf("Bitmap: n=%d good=%d\n", len(bitmap), bitmap.Good())
	fmt.Printf("Hash: %s\n", attestor.HashBitmap(bitmap, saltBytes))
}
