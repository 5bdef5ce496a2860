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

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/da-uptime/attestor-go/config"
	"github.com/da-uptime/attestor-go/storage/fileio"
	"github.com/da-uptime/attestor-go/storage/mysql"
	"github.com/da-uptime/attestor-go/storage/postgresql"
	"github.com/da-uptime/attestor-go/storage/sqlite3"
)

// Open constructs the Archive named by the storage configuration.
func Open(ctx context.Context, cfg config.Storage) (Archive, error) {
	switch cfg.Backend {
	case "", "file":
		return fileio.New(cfg.DataDir)
	case "sqlite3":
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data dir %q: %v", cfg.DataDir, err)
		}
		return sqlite3.New(ctx, filepath.Join(cfg.DataDir, "attestor.db"))
	case "mysql":
		return mysql.New(ctx, cfg.DSN)
	case "postgresql":
		return postgresql.New(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
