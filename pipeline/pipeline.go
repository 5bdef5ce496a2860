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

// Package pipeline assembles the full attestation flow: health store,
// sampler, ring buffer, batch generator, prover, archive and poster, wired
// according to one validated configuration.
package pipeline

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/google/trillian/monitoring"
	"k8s.io/klog/v2"

	attestor "github.com/da-uptime/attestor-go"
	"github.com/da-uptime/attestor-go/batcher"
	"github.com/da-uptime/attestor-go/config"
	"github.com/da-uptime/attestor-go/daclient"
	"github.com/da-uptime/attestor-go/health"
	"github.com/da-uptime/attestor-go/poster"
	"github.com/da-uptime/attestor-go/poster/da"
	"github.com/da-uptime/attestor-go/poster/mock"
	"github.com/da-uptime/attestor-go/prover"
	"github.com/da-uptime/attestor-go/prover/attest"
	"github.com/da-uptime/attestor-go/prover/noop"
	"github.com/da-uptime/attestor-go/ring"
	"github.com/da-uptime/attestor-go/sampler"
	"github.com/da-uptime/attestor-go/storage"
	"github.com/da-uptime/attestor-go/util/jobpool"
)

const (
	// forwardBuffer absorbs Layer-1 posting latency; a full buffer drops
	// forwards rather than stalling the sampler tick.
	forwardBuffer = 64

	poolWorkers = 4
	poolBuffer  = 16
)

// Pipeline owns all pipeline components and their background goroutines.
type Pipeline struct {
	cfg     *config.Config
	store   *health.Store
	buf     *ring.Buffer
	archive storage.Archive
	post    poster.Poster
	prv     prover.Prover
	signKey ed25519.PrivateKey

	smplr   *sampler.Sampler
	gen     *batcher.Generator
	pool    *jobpool.Pool
	forward chan attestor.Sample

	// work outlives the run context so jobs drained during shutdown can
	// still talk to the archive and the ledger; Run cancels it when the
	// grace period ends.
	work       context.Context
	workCancel context.CancelFunc
}

// New assembles a Pipeline from a validated configuration. The returned
// Pipeline is inert until Run is called.
func New(ctx context.Context, cfg *config.Config, mf monitoring.MetricFactory) (*Pipeline, error) {
	if mf == nil {
		mf = monitoring.InertMetricFactory{}
	}

	buf, err := ring.NewBuffer(cfg.Batching.Capacity)
	if err != nil {
		return nil, err
	}
	archive, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %v", err)
	}

	p := &Pipeline{
		cfg:     cfg,
		store:   health.NewStore(),
		buf:     buf,
		archive: archive,
		forward: make(chan attestor.Sample, forwardBuffer),
	}
	p.work, p.workCancel = context.WithCancel(context.WithoutCancel(ctx))

	var base poster.Poster
	switch cfg.Posting.Mode {
	case config.PostingModeReal:
		client, err := daclient.New(cfg.Posting.NodeURL, daclient.Options{})
		if err != nil {
			return nil, fmt.Errorf("failed to create DA client: %v", err)
		}
		base = da.New(client, cfg.Posting.Namespace)
	default:
		base = mock.New(cfg.Posting.Namespace)
	}
	p.post = poster.NewBudgeted(base, poster.Config{
		RetryBudget:      cfg.Posting.RetryBudget,
		SampleRatePerSec: cfg.Posting.SampleRatePerSec,
	}, mf)

	if cfg.Proofs.Enabled {
		key, err := attest.LoadSigningKey(cfg.Proofs.SigningKeyPath)
		if err != nil {
			return nil, err
		}
		p.signKey = key
		p.prv = attest.NewProver(key, cfg.SaltBytes)
	} else {
		p.prv = noop.Prover{}
	}

	p.smplr = sampler.New(sampler.Config{
		Tick:                cfg.TickPeriod(),
		MaxStalenessSecs:    cfg.Sampling.MaxStalenessSecs,
		GracePeriodSecs:     cfg.Sampling.GracePeriodSecs,
		MinIncrement:        cfg.Sampling.MinIncrement,
		RequireSampledCount: cfg.Sampling.RequireSampleCount,
	}, p.store, buf, p.forward, mf)

	p.gen = batcher.New(batcher.Config{
		Window:         cfg.WindowPeriod(),
		WindowTicks:    cfg.WindowTicks,
		Threshold:      cfg.Threshold,
		Salt:           cfg.SaltBytes,
		PartialWindows: cfg.Batching.PartialWindows,
	}, buf, p.handleBatch, mf)

	pool, err := jobpool.New(poolWorkers, poolBuffer, 0)
	if err != nil {
		return nil, err
	}
	p.pool = pool

	return p, nil
}

// Store returns the health store the ingestion surface writes into.
func (p *Pipeline) Store() *health.Store {
	return p.store
}

// Run starts the pipeline goroutines and blocks until ctx is cancelled,
// then drains in-flight proving and posting work within grace.
func (p *Pipeline) Run(ctx context.Context, grace time.Duration) error {
	p.pool.Start()
	go p.smplr.Run(ctx)
	go p.gen.Run(ctx)
	go p.forwardLoop(ctx)

	<-ctx.Done()

	// Drained jobs run on the detached work context; cancel it once the
	// grace period ends so a stuck submission cannot outlive shutdown.
	timer := time.AfterFunc(grace, p.workCancel)
	if err := p.pool.StopWithin(grace); err != nil {
		klog.Warningf("Shutdown drain incomplete: %v", err)
	}
	timer.Stop()
	p.workCancel()
	if err := p.archive.Close(); err != nil {
		klog.Warningf("Failed to close archive: %v", err)
	}
	return nil
}

// forwardLoop consumes the sampler's forward stream: every sample is
// archived, and optionally posted to the ledger as a Layer-1 record.
func (p *Pipeline) forwardLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-p.forward:
			if err := p.archive.AppendSample(ctx, s); err != nil {
				klog.Errorf("Failed to archive sample at %d: %v", s.Timestamp, err)
			}
			if !p.cfg.Posting.PostEverySample {
				continue
			}
			if err := p.pool.Submit(ctx, func() { p.postSample(p.work, s) }); err != nil {
				klog.Warningf("Dropping Layer-1 posting of sample at %d: %v", s.Timestamp, err)
			}
		}
	}
}

func (p *Pipeline) postSample(ctx context.Context, s attestor.Sample) {
	entry, err := p.post.SubmitSample(ctx, s)
	if err != nil {
		klog.Errorf("Failed to post sample at %d: %v", s.Timestamp, err)
		return
	}
	if err := p.archive.AppendLedgerEntry(ctx, attestor.TypeSample, *entry); err != nil {
		klog.Errorf("Failed to archive ledger entry for sample at %d: %v", s.Timestamp, err)
	}
}

// handleBatch runs on the batch generator's timer goroutine; it hands the
// expensive prove-and-post work to the pool and returns.
func (p *Pipeline) handleBatch(ctx context.Context, out batcher.Output) {
	if err := p.pool.Submit(ctx, func() { p.processBatch(p.work, out) }); err != nil {
		klog.Errorf("Dropping batch for window [%d, %d]: %v", out.Batch.Window.Start, out.Batch.Window.End, err)
	}
}

// processBatch proves (when enabled and provable), signs, archives and posts
// one batch. A failed proof downgrades the attestation to unproven rather
// than suppressing it; the batch digest still reaches the ledger.
func (p *Pipeline) processBatch(ctx context.Context, out batcher.Output) {
	pub := attestor.PublicInputs{
		N:          out.Batch.N,
		Threshold:  out.Batch.Threshold,
		BitmapHash: out.Batch.BitmapHash,
	}

	att := attestor.BatchAttestation{Batch: out.Batch, SampleRoot: out.SampleRoot}
	artifact, err := p.prv.Prove(ctx, out.Bitmap, pub)
	switch {
	case err == nil:
		att.Proof = artifact
	default:
		var genErr *prover.GenerationError
		if errors.As(err, &genErr) {
			klog.Warningf("Proof generation refused for window [%d, %d]: %v", out.Batch.Window.Start, out.Batch.Window.End, err)
		} else {
			klog.Errorf("Proof generation failed for window [%d, %d]: %v", out.Batch.Window.Start, out.Batch.Window.End, err)
		}
	}
	if p.signKey != nil {
		att.Signature = ed25519.Sign(p.signKey, attestor.SerializeBatch(out.Batch))
	}

	if err := p.archive.SaveBatch(ctx, att, out.Bitmap); err != nil {
		klog.Errorf("Failed to archive batch for window [%d, %d]: %v", out.Batch.Window.Start, out.Batch.Window.End, err)
	}

	entry, err := p.post.SubmitBatch(ctx, att)
	if err != nil {
		klog.Errorf("Failed to post batch for window [%d, %d]: %v", out.Batch.Window.Start, out.Batch.Window.End, err)
		return
	}
	klog.Infof("Posted batch for window [%d, %d] at ledger height %d", out.Batch.Window.Start, out.Batch.Window.End, entry.Height)
	if err := p.archive.AppendLedgerEntry(ctx, attestor.TypeBatchAttestation, *entry); err != nil {
		klog.Errorf("Failed to archive ledger entry for window [%d, %d]: %v", out.Batch.Window.Start, out.Batch.Window.End, err)
	}
}
