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

// Package sqlite3 implements the Archive interface on an embedded SQLite
// database. Intended for single-node deployments where the flat-file backend
// is too loose and a full database server is too much.
package sqlite3

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	attestor "github.com/da-uptime/attestor-go"
)

const (
	createSamplesTableSQL = `CREATE TABLE IF NOT EXISTS Samples(
		Timestamp INTEGER NOT NULL,
		Head INTEGER,
		SampledCount INTEGER,
		OK INTEGER NOT NULL,
		Reason TEXT NOT NULL
	)`
	createBatchesTableSQL = `CREATE TABLE IF NOT EXISTS Batches(
		WindowStart INTEGER NOT NULL,
		WindowEnd INTEGER NOT NULL,
		BitmapHash BLOB NOT NULL,
		Bitmap BLOB NOT NULL,
		Attestation BLOB NOT NULL,
		PRIMARY KEY (WindowStart, WindowEnd, BitmapHash)
	)`
	createLedgerTableSQL = `CREATE TABLE IF NOT EXISTS Ledger(
		Kind TEXT NOT NULL,
		Commitment BLOB NOT NULL,
		Height INTEGER NOT NULL,
		Namespace TEXT NOT NULL,
		SubmittedAt INTEGER NOT NULL
	)`

	insertSampleSQL = "INSERT INTO Samples(Timestamp, Head, SampledCount, OK, Reason) VALUES (?, ?, ?, ?, ?)"
	// INSERT OR IGNORE makes batch writes replay tolerant: a second write of
	// the same (window, bitmap hash) is a no-op.
	insertBatchSQL  = "INSERT OR IGNORE INTO Batches(WindowStart, WindowEnd, BitmapHash, Bitmap, Attestation) VALUES (?, ?, ?, ?, ?)"
	insertLedgerSQL = "INSERT INTO Ledger(Kind, Commitment, Height, Namespace, SubmittedAt) VALUES (?, ?, ?, ?, ?)"
)

// Archive is a SQLite implementation of the storage.Archive interface.
type Archive struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path and ensures the schema
// exists.
func New(ctx context.Context, path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %v", err)
	}
	for _, stmt := range []string{createSamplesTableSQL, createBatchesTableSQL, createLedgerTableSQL} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %v", err)
		}
	}
	return &Archive{db: db}, nil
}

// AppendSample archives one sample.
func (a *Archive) AppendSample(ctx context.Context, s attestor.Sample) error {
	_, err := a.db.ExecContext(ctx, insertSampleSQL, s.Timestamp, s.Head, s.SampledCount, s.OK, s.Reason.String())
	return err
}

// SaveBatch archives the attestation for one window. Duplicate windows are
// ignored.
func (a *Archive) SaveBatch(ctx context.Context, att attestor.BatchAttestation, bitmap attestor.Bitmap) error {
	raw, err := json.Marshal(att)
	if err != nil {
		return fmt.Errorf("failed to marshal attestation: %v", err)
	}
	_, err = a.db.ExecContext(ctx, insertBatchSQL,
		att.Batch.Window.Start, att.Batch.Window.End, att.Batch.BitmapHash[:], []byte(bitmap), raw)
	return err
}

// AppendLedgerEntry archives one commitment handle.
func (a *Archive) AppendLedgerEntry(ctx context.Context, kind string, entry attestor.LedgerEntry) error {
	_, err := a.db.ExecContext(ctx, insertLedgerSQL,
		kind, entry.Commitment, entry.Height, entry.Namespace, entry.SubmittedAt)
	return err
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}
