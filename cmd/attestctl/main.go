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

// The attestctl binary is the command-line utility for inspecting and
// verifying attestor output: batch attestations, bitmap digests, sample
// inclusion proofs and signing keys.
package main

import (
	"flag"

	"k8s.io/klog/v2"

	"github.com/da-uptime/attestor-go/cmd/attestctl/cmd"
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	cmd.Execute()
}
