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

// Package poster defines how attestation records reach the append-only
// ledger. The Poster interface abstracts over the real blob-submitting
// backend and the local mock, and the Budgeted wrapper layers a bounded
// retry budget with backoff, duplicate suppression and rate limiting on top
// of either.
package poster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/trillian/monitoring"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
	"k8s.io/klog/v2"

	attestor "github.com/da-uptime/attestor-go"
	"github.com/da-uptime/attestor-go/daclient"
)

// Poster submits records to the ledger and returns a handle for each.
type Poster interface {
	// SubmitSample posts one raw sample.
	SubmitSample(ctx context.Context, s attestor.Sample) (*attestor.LedgerEntry, error)
	// SubmitBatch posts one batch attestation.
	SubmitBatch(ctx context.Context, att attestor.BatchAttestation) (*attestor.LedgerEntry, error)
}

// PostingError reports that a submission was abandoned after exhausting its
// retry budget.
type PostingError struct {
	Kind     string
	Attempts int
	Err      error
}

func (e *PostingError) Error() string {
	return fmt.Sprintf("posting %s abandoned after %d attempts: %v", e.Kind, e.Attempts, e.Err)
}

func (e *PostingError) Unwrap() error {
	return e.Err
}

// Envelope is the wire form of a posted record. The type tag lets ledger
// readers separate raw samples from batch attestations within one namespace.
type Envelope struct {
	Type        string                     `json:"type"`
	Sample      *attestor.Sample           `json:"sample,omitempty"`
	Attestation *attestor.BatchAttestation `json:"attestation,omitempty"`
}

// EncodeSample serializes a sample into its posted envelope.
func EncodeSample(s attestor.Sample) ([]byte, error) {
	return json.Marshal(Envelope{Type: attestor.TypeSample, Sample: &s})
}

// EncodeBatch serializes a batch attestation into its posted envelope.
func EncodeBatch(att attestor.BatchAttestation) ([]byte, error) {
	return json.Marshal(Envelope{Type: attestor.TypeBatchAttestation, Attestation: &att})
}

var (
	metricsOnce     sync.Once
	postsTotal      monitoring.Counter
	postRetries     monitoring.Counter
	postsSuppressed monitoring.Counter
)

func setupMetrics(mf monitoring.MetricFactory) {
	postsTotal = mf.NewCounter("posts_total", "Number of ledger submissions, by record kind and status", "kind", "status")
	postRetries = mf.NewCounter("post_retries_total", "Number of submission retries, by record kind", "kind")
	postsSuppressed = mf.NewCounter("posts_suppressed_total", "Number of duplicate batch submissions suppressed")
}

// Config tunes the Budgeted wrapper.
type Config struct {
	// RetryBudget is the maximum number of submission attempts per record.
	RetryBudget int
	// RetryBaseDelay is the backoff unit between attempts; the wait
	// doubles from here on consecutive failures. Defaults to one second.
	RetryBaseDelay time.Duration
	// SampleRatePerSec throttles sample posting; 0 disables the limiter.
	SampleRatePerSec float64
	// DedupeTTL bounds how long a posted batch window is remembered.
	DedupeTTL time.Duration
}

const dedupeSize = 128

// Budgeted wraps a Poster with a bounded retry budget and exponential
// backoff between attempts, an expiring dedupe cache keyed on (window,
// bitmap hash), and an optional sample rate limiter. Retry policy lives
// here and nowhere else; the wrapped backend makes one attempt per call.
type Budgeted struct {
	next    Poster
	budget  int
	backoff backoff
	limiter *rate.Limiter
	dedupe  *lru.LRU[string, attestor.LedgerEntry]
}

// NewBudgeted wraps next according to cfg.
func NewBudgeted(next Poster, cfg Config, mf monitoring.MetricFactory) *Budgeted {
	if mf == nil {
		mf = monitoring.InertMetricFactory{}
	}
	metricsOnce.Do(func() { setupMetrics(mf) })
	budget := cfg.RetryBudget
	if budget < 1 {
		budget = 1
	}
	ttl := cfg.DedupeTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	b := &Budgeted{
		next:    next,
		budget:  budget,
		backoff: backoff{base: cfg.RetryBaseDelay},
		dedupe:  lru.NewLRU[string, attestor.LedgerEntry](dedupeSize, nil, ttl),
	}
	if cfg.SampleRatePerSec > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(cfg.SampleRatePerSec), 1)
	}
	return b
}

// SubmitSample posts one sample, waiting on the rate limiter first.
func (b *Budgeted) SubmitSample(ctx context.Context, s attestor.Sample) (*attestor.LedgerEntry, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return b.submit(ctx, attestor.TypeSample, func(ctx context.Context) (*attestor.LedgerEntry, error) {
		return b.next.SubmitSample(ctx, s)
	})
}

// SubmitBatch posts one batch attestation. A window already posted within
// the dedupe TTL returns the original ledger entry without hitting the
// backend again.
func (b *Budgeted) SubmitBatch(ctx context.Context, att attestor.BatchAttestation) (*attestor.LedgerEntry, error) {
	key := dedupeKey(att.Batch)
	if entry, ok := b.dedupe.Get(key); ok {
		postsSuppressed.Inc()
		klog.V(1).Infof("Suppressing duplicate batch submission for window [%d, %d]", att.Batch.Window.Start, att.Batch.Window.End)
		return &entry, nil
	}
	entry, err := b.submit(ctx, attestor.TypeBatchAttestation, func(ctx context.Context) (*attestor.LedgerEntry, error) {
		return b.next.SubmitBatch(ctx, att)
	})
	if err != nil {
		return nil, err
	}
	b.dedupe.Add(key, *entry)
	return entry, nil
}

func (b *Budgeted) submit(ctx context.Context, kind string, do func(context.Context) (*attestor.LedgerEntry, error)) (*attestor.LedgerEntry, error) {
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= b.budget; attempt++ {
		if attempt > 1 {
			postRetries.Inc(kind)
		}
		if err := b.waitForBackoff(ctx); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}
		attempts = attempt
		entry, err := do(ctx)
		if err == nil {
			b.backoff.decreaseMultiplier()
			postsTotal.Inc(kind, "ok")
			return entry, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
		wait := b.backoff.set(nil)
		klog.Warningf("Submission of %s failed (attempt %d/%d), backing off %v: %v", kind, attempt, b.budget, wait, err)
	}
	postsTotal.Inc(kind, "abandoned")
	return nil, &PostingError{Kind: kind, Attempts: attempts, Err: lastErr}
}

// waitForBackoff blocks until the shared backoff window has passed or the
// context is done.
func (b *Budgeted) waitForBackoff(ctx context.Context) error {
	if deadline := b.backoff.until(); deadline.After(time.Now()) {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return ctx.Err()
}

// retryable reports whether a submission failure is worth another attempt.
// Node-side rejections other than rate limiting are permanent.
func retryable(err error) bool {
	var rspErr daclient.RspError
	if errors.As(err, &rspErr) {
		if rspErr.StatusCode >= 400 && rspErr.StatusCode < 500 && rspErr.StatusCode != http.StatusTooManyRequests {
			return false
		}
	}
	return true
}

func dedupeKey(b attestor.Batch) string {
	return fmt.Sprintf("%d:%d:%x", b.Window.Start, b.Window.End, b.BitmapHash[:])
}
