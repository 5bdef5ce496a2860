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

package pipeline

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	attestor "github.com/da-uptime/attestor-go"
	"github.com/da-uptime/attestor-go/batcher"
	"github.com/da-uptime/attestor-go/config"
	"github.com/da-uptime/attestor-go/prover/attest"
)

func i64(v int64) *int64 { return &v }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate()=%v", err)
	}
	return cfg
}

func goodSamples(n int) []attestor.Sample {
	samples := make([]attestor.Sample, n)
	for i := range samples {
		samples[i] = attestor.Sample{
			Timestamp: 1000 + int64(i)*30,
			Head:      i64(100 + int64(i)),
			OK:        true,
			Reason:    attestor.Reason{Code: attestor.ReasonAdvanced, HeadDelta: 1},
		}
	}
	return samples
}

func readJSON(t *testing.T, path string, into interface{}) {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%q)=%v", path, err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		t.Fatalf("Unmarshal(%q)=%v", path, err)
	}
}

func TestProcessBatchArchivesAndPosts(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	p, err := New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("New()=%v", err)
	}

	out := batcher.Build(goodSamples(20), cfg.SaltBytes, cfg.Threshold)
	p.processBatch(ctx, out)

	var att attestor.BatchAttestation
	readJSON(t, filepath.Join(cfg.Storage.DataDir, "batch.json"), &att)
	if att.Batch.N != 20 || att.Batch.Good != 20 {
		t.Errorf("archived batch n=%d good=%d, want 20 and 20", att.Batch.N, att.Batch.Good)
	}
	if att.Proof != nil {
		t.Errorf("proof=%+v, want nil with proving disabled", att.Proof)
	}
	if att.Signature != nil {
		t.Errorf("signature=%x, want nil with no signing key", att.Signature)
	}
	if len(att.SampleRoot) == 0 {
		t.Error("archived batch has no sample root")
	}

	var ledger []struct {
		Kind  string               `json:"type"`
		Entry attestor.LedgerEntry `json:"entry"`
	}
	readJSON(t, filepath.Join(cfg.Storage.DataDir, "ledger.json"), &ledger)
	if len(ledger) != 1 || ledger[0].Kind != attestor.TypeBatchAttestation {
		t.Fatalf("ledger=%+v, want one %q record", ledger, attestor.TypeBatchAttestation)
	}
	if ledger[0].Entry.Height == 0 || len(ledger[0].Entry.Commitment) == 0 {
		t.Errorf("ledger entry=%+v, want height and commitment set", ledger[0].Entry)
	}
}

func TestProcessBatchProvesAndSigns(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	privPEM, pubPEM, err := attest.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair()=%v", err)
	}
	keyPath := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(keyPath, privPEM, 0600); err != nil {
		t.Fatalf("WriteFile(key)=%v", err)
	}
	pubPath := filepath.Join(t.TempDir(), "key.pub.pem")
	if err := os.WriteFile(pubPath, pubPEM, 0644); err != nil {
		t.Fatalf("WriteFile(pub)=%v", err)
	}
	cfg.Proofs.Enabled = true
	cfg.Proofs.SigningKeyPath = keyPath
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate()=%v", err)
	}

	p, err := New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("New()=%v", err)
	}

	out := batcher.Build(goodSamples(20), cfg.SaltBytes, cfg.Threshold)
	p.processBatch(ctx, out)

	var att attestor.BatchAttestation
	readJSON(t, filepath.Join(cfg.Storage.DataDir, "batch.json"), &att)
	if att.Proof == nil {
		t.Fatal("archived batch has no proof artifact")
	}

	pub, err := attest.LoadVerifyingKey(pubPath)
	if err != nil {
		t.Fatalf("LoadVerifyingKey()=%v", err)
	}
	if !attest.NewVerifier(pub).Verify(att.Proof) {
		t.Error("archived proof artifact failed verification")
	}
	if !ed25519.Verify(pub, attestor.SerializeBatch(att.Batch), att.Signature) {
		t.Error("archived batch signature failed verification")
	}
}

func TestProcessBatchBelowThresholdStaysUnproven(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	privPEM, _, err := attest.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair()=%v", err)
	}
	keyPath := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(keyPath, privPEM, 0600); err != nil {
		t.Fatalf("WriteFile(key)=%v", err)
	}
	cfg.Proofs.Enabled = true
	cfg.Proofs.SigningKeyPath = keyPath

	p, err := New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("New()=%v", err)
	}

	// Half the window fails, so good < ceil(0.95*n) and the statement is
	// unprovable. The batch must still be archived and posted.
	samples := goodSamples(20)
	for i := 0; i < 10; i++ {
		samples[i].OK = false
		samples[i].Reason = attestor.Reason{Code: attestor.ReasonStuck, AgeSecs: 60}
	}
	out := batcher.Build(samples, cfg.SaltBytes, cfg.Threshold)
	p.processBatch(ctx, out)

	var att attestor.BatchAttestation
	readJSON(t, filepath.Join(cfg.Storage.DataDir, "batch.json"), &att)
	if att.Proof != nil {
		t.Errorf("proof=%+v, want nil for non-compliant batch", att.Proof)
	}
	if len(att.Signature) == 0 {
		t.Error("non-compliant batch must still be signed")
	}

	var ledger []json.RawMessage
	readJSON(t, filepath.Join(cfg.Storage.DataDir, "ledger.json"), &ledger)
	if len(ledger) != 1 {
		t.Errorf("ledger has %d records, want 1", len(ledger))
	}
}

func TestPostSampleArchivesLedgerEntry(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Posting.PostEverySample = true

	p, err := New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("New()=%v", err)
	}

	p.postSample(ctx, goodSamples(1)[0])

	var ledger []struct {
		Kind string `json:"type"`
	}
	readJSON(t, filepath.Join(cfg.Storage.DataDir, "ledger.json"), &ledger)
	if len(ledger) != 1 || ledger[0].Kind != attestor.TypeSample {
		t.Errorf("ledger=%+v, want one %q record", ledger, attestor.TypeSample)
	}
}

func TestRunDrainsQueuedWorkAfterCancel(t *testing.T) {
	cfg := testConfig(t)
	p, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New()=%v", err)
	}
	out := batcher.Build(goodSamples(20), cfg.SaltBytes, cfg.Threshold)

	// Queue a batch job before Run starts the workers; it must complete
	// during the shutdown drain even though the run context is already
	// cancelled when the drain begins.
	if err := p.pool.Submit(context.Background(), func() { p.processBatch(p.work, out) }); err != nil {
		t.Fatalf("Submit()=%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Run(ctx, 5*time.Second); err != nil {
		t.Fatalf("Run()=%v", err)
	}

	var ledger []struct {
		Kind  string               `json:"type"`
		Entry attestor.LedgerEntry `json:"entry"`
	}
	readJSON(t, filepath.Join(cfg.Storage.DataDir, "ledger.json"), &ledger)
	if len(ledger) != 1 || ledger[0].Kind != attestor.TypeBatchAttestation {
		t.Fatalf("ledger=%+v, want one %q record posted during the drain", ledger, attestor.TypeBatchAttestation)
	}
	if ledger[0].Entry.Height == 0 {
		t.Errorf("ledger entry=%+v, want a posted height", ledger[0].Entry)
	}
}
