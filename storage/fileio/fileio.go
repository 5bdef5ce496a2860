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

// Package fileio implements the Archive interface with flat files under a
// data directory: samples.json, batch.json, bitmap.hex and ledger.json.
// Every write goes through write-temp-then-rename so a crash never leaves a
// torn file behind.
package fileio

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	attestor "github.com/da-uptime/attestor-go"
)

// File names within the data directory.
const (
	samplesFile = "samples.json"
	batchFile   = "batch.json"
	bitmapFile  = "bitmap.hex"
	ledgerFile  = "ledger.json"
)

// Archive is a file-backed archive. The sample and ledger files hold the
// full history and are rewritten on each append; suitable for the small,
// bounded volumes this pipeline produces (thousands of records per day).
type Archive struct {
	mu      sync.Mutex
	dir     string
	samples []attestor.Sample
	ledger  []ledgerRecord
}

type ledgerRecord struct {
	Kind  string               `json:"type"`
	Entry attestor.LedgerEntry `json:"entry"`
}

// New creates the data directory if needed and loads any existing history.
func New(dir string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %q: %v", dir, err)
	}
	a := &Archive{dir: dir}
	if err := loadJSON(filepath.Join(dir, samplesFile), &a.samples); err != nil {
		return nil, err
	}
	if err := loadJSON(filepath.Join(dir, ledgerFile), &a.ledger); err != nil {
		return nil, err
	}
	return a, nil
}

// AppendSample archives one sample and rewrites samples.json.
func (a *Archive) AppendSample(_ context.Context, s attestor.Sample) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.samples = append(a.samples, s)
	return writeJSONAtomic(filepath.Join(a.dir, samplesFile), a.samples)
}

// SaveBatch writes batch.json and bitmap.hex for the most recent batch.
func (a *Archive) SaveBatch(_ context.Context, att attestor.BatchAttestation, bitmap attestor.Bitmap) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := writeJSONAtomic(filepath.Join(a.dir, batchFile), att); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(a.dir, bitmapFile), []byte(bitmap.Hex()))
}

// AppendLedgerEntry archives one commitment handle and rewrites ledger.json.
func (a *Archive) AppendLedgerEntry(_ context.Context, kind string, entry attestor.LedgerEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ledger = append(a.ledger, ledgerRecord{Kind: kind, Entry: entry})
	return writeJSONAtomic(filepath.Join(a.dir, ledgerFile), a.ledger)
}

// Close is a no-op for the file backend.
func (a *Archive) Close() error {
	return nil
}

// Samples returns a copy of the archived samples, oldest first.
func (a *Archive) Samples() []attestor.Sample {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]attestor.Sample, len(a.samples))
	copy(out, a.samples)
	return out
}

func loadJSON(path string, into interface{}) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %q: %v", path, err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("failed to parse %q: %v", path, err)
	}
	return nil
}

func writeJSONAtomic(path string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %q: %v", path, err)
	}
	return writeAtomic(path, raw)
}

// writeAtomic writes to a temp file in the target directory and renames it
// into place.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %q: %v", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %q: %v", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %q: %v", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename %q into place: %v", tmpName, err)
	}
	return nil
}
