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

// Package mysql implements the Archive interface on a MySQL database.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"k8s.io/klog/v2"

	"github.com/go-sql-driver/mysql"

	attestor "github.com/da-uptime/attestor-go"
)

const (
	insertSampleSQL = "INSERT INTO Samples(Timestamp, Head, SampledCount, OK, Reason) VALUES (?, ?, ?, ?, ?)"
	insertBatchSQL  = "INSERT INTO Batches(WindowStart, WindowEnd, BitmapHash, Bitmap, Attestation) VALUES (?, ?, ?, ?, ?)"
	insertLedgerSQL = "INSERT INTO Ledger(Kind, Commitment, Height, Namespace, SubmittedAt) VALUES (?, ?, ?, ?, ?)"
)

// Archive is a MySQL implementation of the storage.Archive interface.
type Archive struct {
	db *sql.DB
}

// New takes the database connection string as the input and returns the
// Archive. The schema must already exist; see schema.sql.
func New(ctx context.Context, dbConn string) (*Archive, error) {
	conn := strings.Split(dbConn, "://")
	if len(conn) != 2 || conn[0] != "mysql" {
		return nil, errors.New("could not parse MySQL data source name")
	}

	db, err := open(ctx, conn[1])
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
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
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
func open(ctx context.Context, dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dataSourceName)
	if err != nil {
		// Don't log data source name as it could contain credentials.
		klog.Warningf("Could not open MySQL database, check config: %s", err)
		return nil, err
	}

	if _, err := db.ExecContext(ctx, "SET sql_mode = 'STRICT_ALL_TABLES'"); err != nil {
		klog.Warningf("Failed to set strict mode on mysql db: %s", err)
		return nil, err
	}

	return db, nil
}
