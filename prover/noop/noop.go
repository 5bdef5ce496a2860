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

// Package noop provides the disabled prover backend: batches are posted
// without proof artifacts.
package noop

import (
	"context"

	attestor "github.com/da-uptime/attestor-go"
)

// Prover is the disabled backend; Prove always reports no artifact.
type Prover struct{}

// Prove returns (nil, nil): no artifact, no failure. The poster flags the
// batch as unproven.
func (Prover) Prove(_ context.Context, _ attestor.Bitmap, _ attestor.PublicInputs) (*attestor.ProofArtifact, error) {
	return nil, nil
}
