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

// Package config loads and validates the pipeline configuration. Violations
// of the structural constraints (window period not a multiple of the tick
// period, grace period not below the staleness bound) are startup-fatal;
// nothing downstream re-checks them.
package config

import (
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PostingMode selects the ledger submission backend.
type PostingMode string

// Recognized posting modes.
const (
	PostingModeMock PostingMode = "mock"
	PostingModeReal PostingMode = "real"
)

// PartialWindowMode controls what the batch generator does when its tick
// fires before the ring buffer holds a full window of samples.
type PartialWindowMode string

// Recognized partial-window modes.
const (
	// PartialWindowSkip suppresses batch generation until the snapshot
	// holds at least one full window of samples.
	PartialWindowSkip PartialWindowMode = "skip"
	// PartialWindowEmit generates a batch over whatever the snapshot
	// holds, as long as it is non-empty.
	PartialWindowEmit PartialWindowMode = "emit"
)

// thresholdBasis is the fixed-point denominator for threshold fractions.
// 0.95 is carried as 9500 so the threshold ceiling is exact integer math.
const thresholdBasis = 10000

// Sampling holds the sampler predicate parameters.
type Sampling struct {
	TickSecs           int64 `yaml:"tick_secs"`
	MaxStalenessSecs   int64 `yaml:"max_staleness_secs"`
	GracePeriodSecs    int64 `yaml:"grace_period_secs"`
	MinIncrement       int64 `yaml:"min_increment"`
	RequireSampleCount bool  `yaml:"require_sampled_count"`
}

// Batching holds the batch generator parameters.
type Batching struct {
	WindowSecs        int64             `yaml:"window_secs"`
	Capacity          int               `yaml:"capacity"`
	ThresholdFraction float64           `yaml:"threshold_fraction"`
	PartialWindows    PartialWindowMode `yaml:"partial_windows"`
	// Salt binds bitmap digests to a specific deployment/run; hex encoded,
	// may be empty.
	Salt string `yaml:"salt"`
}

// Posting holds the ledger submission parameters.
type Posting struct {
	Mode            PostingMode `yaml:"mode"`
	NodeURL         string      `yaml:"node_url"`
	Namespace       string      `yaml:"namespace"`
	PostEverySample bool        `yaml:"post_every_sample"`
	// RetryBudget bounds the number of submission attempts per payload
	// before a PostingError is surfaced.
	RetryBudget int `yaml:"retry_budget"`
	// SampleRatePerSec throttles the Layer-1 sample stream; zero means
	// unlimited.
	SampleRatePerSec float64 `yaml:"sample_rate_per_sec"`
}

// Proofs holds the prover parameters.
type Proofs struct {
	Enabled bool `yaml:"enabled"`
	// SigningKeyPath points at a PKCS#8 PEM-encoded Ed25519 private key
	// used by the attestation prover and the batch signer.
	SigningKeyPath string `yaml:"signing_key_path"`
}

// Storage holds the local archive parameters.
type Storage struct {
	// Backend is one of "file", "sqlite3", "mysql", "postgresql".
	Backend string `yaml:"backend"`
	// DataDir is the directory for the file backend and the sqlite3
	// database file.
	DataDir string `yaml:"data_dir"`
	// DSN is the connection string for the mysql/postgresql backends.
	DSN string `yaml:"dsn"`
}

// Config is the full pipeline configuration.
type Config struct {
	Sampling Sampling `yaml:"sampling"`
	Batching Batching `yaml:"batching"`
	Posting  Posting  `yaml:"posting"`
	Proofs   Proofs   `yaml:"proofs"`
	Storage  Storage  `yaml:"storage"`

	// WindowTicks is window_secs / tick_secs, computed once during
	// validation and carried explicitly rather than re-derived per tick.
	WindowTicks int `yaml:"-"`
	// ThresholdBP is the threshold fraction in basis points (9500 = 0.95).
	ThresholdBP uint64 `yaml:"-"`
	// SaltBytes is the decoded bitmap salt.
	SaltBytes []byte `yaml:"-"`
}

// Default returns the default configuration: 30s ticks, 10 minute windows,
// 120s staleness bound, 45s grace period, 95% threshold, 288-sample buffer.
func Default() *Config {
	return &Config{
		Sampling: Sampling{
			TickSecs:           30,
			MaxStalenessSecs:   120,
			GracePeriodSecs:    45,
			MinIncrement:       1,
			RequireSampleCount: true,
		},
		Batching: Batching{
			WindowSecs:        600,
			Capacity:          288,
			ThresholdFraction: 0.95,
			PartialWindows:    PartialWindowSkip,
		},
		Posting: Posting{
			Mode:        PostingModeMock,
			Namespace:   "attestor",
			RetryBudget: 5,
		},
		Storage: Storage{
			Backend: "file",
			DataDir: "data",
		},
	}
}

// FromFile loads a YAML config file on top of the defaults and validates it.
func FromFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %v", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the structural constraints and fills in the derived
// fields (WindowTicks, ThresholdBP, SaltBytes).
func (c *Config) Validate() error {
	if c.Sampling.TickSecs <= 0 {
		return fmt.Errorf("sampling.tick_secs is %d, want > 0", c.Sampling.TickSecs)
	}
	if c.Batching.WindowSecs <= 0 {
		return fmt.Errorf("batching.window_secs is %d, want > 0", c.Batching.WindowSecs)
	}
	if c.Batching.WindowSecs%c.Sampling.TickSecs != 0 {
		return fmt.Errorf("batching.window_secs (%d) is not a multiple of sampling.tick_secs (%d)", c.Batching.WindowSecs, c.Sampling.TickSecs)
	}
	c.WindowTicks = int(c.Batching.WindowSecs / c.Sampling.TickSecs)

	if c.Sampling.GracePeriodSecs >= c.Sampling.MaxStalenessSecs {
		return fmt.Errorf("sampling.grace_period_secs (%d) must be < sampling.max_staleness_secs (%d)", c.Sampling.GracePeriodSecs, c.Sampling.MaxStalenessSecs)
	}
	if c.Sampling.MinIncrement < 1 {
		return fmt.Errorf("sampling.min_increment is %d, want >= 1", c.Sampling.MinIncrement)
	}

	if c.Batching.Capacity < c.WindowTicks {
		return fmt.Errorf("batching.capacity (%d) is below the window size of %d ticks", c.Batching.Capacity, c.WindowTicks)
	}
	f := c.Batching.ThresholdFraction
	if f <= 0 || f > 1 {
		return fmt.Errorf("batching.threshold_fraction is %v, want in (0, 1]", f)
	}
	c.ThresholdBP = uint64(math.Round(f * thresholdBasis))

	switch c.Batching.PartialWindows {
	case PartialWindowSkip, PartialWindowEmit:
	default:
		return fmt.Errorf("batching.partial_windows is %q, want %q or %q", c.Batching.PartialWindows, PartialWindowSkip, PartialWindowEmit)
	}

	salt, err := hex.DecodeString(c.Batching.Salt)
	if err != nil {
		return fmt.Errorf("batching.salt is not valid hex: %v", err)
	}
	c.SaltBytes = salt

	switch c.Posting.Mode {
	case PostingModeMock:
	case PostingModeReal:
		if c.Posting.NodeURL == "" {
			return fmt.Errorf("posting.mode is %q but posting.node_url is empty", PostingModeReal)
		}
	default:
		return fmt.Errorf("posting.mode is %q, want %q or %q", c.Posting.Mode, PostingModeMock, PostingModeReal)
	}
	if c.Posting.Namespace == "" {
		return fmt.Errorf("posting.namespace is empty")
	}
	if c.Posting.RetryBudget < 1 {
		return fmt.Errorf("posting.retry_budget is %d, want >= 1", c.Posting.RetryBudget)
	}

	switch c.Storage.Backend {
	case "", "file", "sqlite3":
	case "mysql", "postgresql":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.backend is %q but storage.dsn is empty", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("storage.backend is %q, want file, sqlite3, mysql or postgresql", c.Storage.Backend)
	}

	if c.Proofs.Enabled && c.Proofs.SigningKeyPath == "" {
		return fmt.Errorf("proofs.enabled is true but proofs.signing_key_path is empty")
	}
	return nil
}

// TickPeriod returns the sampler period as a Duration.
func (c *Config) TickPeriod() time.Duration {
	return time.Duration(c.Sampling.TickSecs) * time.Second
}

// WindowPeriod returns the batch generator period as a Duration.
func (c *Config) WindowPeriod() time.Duration {
	return time.Duration(c.Batching.WindowSecs) * time.Second
}

// Threshold returns ceil(threshold_fraction * n) using exact integer
// arithmetic on the basis-point representation.
func (c *Config) Threshold(n uint64) uint64 {
	return (n*c.ThresholdBP + thresholdBasis - 1) / thresholdBasis
}
