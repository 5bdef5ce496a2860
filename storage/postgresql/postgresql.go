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

// Package postgresql implements the Archive interface on a PostgreSQL
// database.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"k8s.io/klog/v2"

	attestor "github.com/da-uptime/attestor-go"
)

const (
	insertSampleSQL = "INSERT INTO Samples(Timestamp, Head, SampledCount, OK, Reason) VALUES ($1, $2, $3, $4, $5)"
	insertBatchSQL  = "INSERT INTO Batches(WindowStart, WindowEnd, BitmapHash, Bitmap, Attestation) VALUES ($1, $2, $3, $4, $5)"
	insertLedgerSQL = "INSERT INTO Ledger(Kind, Commitment, Height, Namespace, SubmittedAt) VALUES ($1, $2, $3, $4, $5)"
)

// Archive is a PostgreSQL implementation of the storage.Archive interface.
type Archive struct {
	db *sql.DB
}

// New takes the database connection string as the input and returns the
// Archive. The schema must already exist; see schema.sql.
func New(ctx context.Context, dbConn string) (*Archive, error) {
	db, err := open(dbConn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	return &Archive{db: db}, nil
}

// AppendSample archives one sample.
func (a *Archive) AppendSample(ctx context.Context, s attestor.Sample) error {
	_, err := a.db.ExecContext(ctx, insertSampleSQL, s.Timestamp, s.Head, s.SampledCount, s.OK, s.Reason.String())
	return err
}

// SaveBatch archives the attestation for one window. Batches carry a unique
// key on (WindowStart, WindowEnd, BitmapHash) so a replayed write is a no-op.
func (a *Archive) SaveBatch(ctx context.Context, att attestor.BatchAttestation, bitmap attestor.Bitmap) error {
	raw, err := json.Marshal(att)
	if err != nil {
		return fmt.Errorf("failed to marshal attestation: %v", err)
	}
	_, err = a.db.ExecContext(ctx, insertBatchSQL,
		att.Batch.Window.Start, att.Batch.Window.End, att.Batch.BitmapHash[:], []byte(bitmap), raw)
	if err != nil {
		// Ignore duplicated key error.
		var postgresqlErr *pgconn.PgError
		if errors.As(err, &postgresqlErr) && postgresqlErr.Code == pgerrcode.UniqueViolation {
			return nil
		}
		return err
	}
	return nil
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

// open takes the data source name and returns the sql.DB object.
func open(dataSourceName string) (*sql.DB, error) {
	// Verify data source name format.
	conn := strings.Split(dataSourceName, "://")
	if len(conn) != 2 {
		return nil, errors.New("could not parse PostgreSQL data source name")
	}
	if conn[0] != "postgresql" && conn[0] != "postgres" {
		return nil, errors.New("expect data source name to start with postgresql or postgres")
	}

	db, err := sql.Open("pgx", dataSourceName)
	if err != nil {
		// Don't log data source name as it could contain credentials.
		klog.Errorf("could not open PostgreSQL database, check config: %s", err)
		return nil, err
	}

	return db, nil
}
