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

// Package batcher summarizes ring-buffer windows into batches: the salted
// bitmap commitment, the good-count and the compliance threshold. Batches
// are deterministic: the identical ordered sample sequence and salt always
// produce the identical bitmap hash, which is what makes independent
// verification and idempotent re-posting possible.
package batcher

import (
	"context"
	"sync"
	"time"

	"github.com/google/trillian/monitoring"
	"k8s.io/klog/v2"

	attestor "github.com/da-uptime/attestor-go"
	"github.com/da-uptime/attestor-go/config"
	"github.com/da-uptime/attestor-go/inclusion"
	"github.com/da-uptime/attestor-go/ring"
	"github.com/da-uptime/attestor-go/schedule"
)

var (
	metricsOnce     sync.Once
	batchesCounter  monitoring.Counter
	skippedCounter  monitoring.Counter
	lastWindowGood  monitoring.Gauge
	lastWindowTotal monitoring.Gauge
)

func setupMetrics(mf monitoring.MetricFactory) {
	if mf == nil {
		mf = monitoring.InertMetricFactory{}
	}
	batchesCounter = mf.NewCounter("batches_total", "Number of batches generated, by compliance", "compliant")
	skippedCounter = mf.NewCounter("batches_skipped", "Number of batch ticks skipped because the window was not full")
	lastWindowGood = mf.NewGauge("last_window_good", "Good-count of the most recent batch")
	lastWindowTotal = mf.NewGauge("last_window_n", "Sample count of the most recent batch")
}

// Config holds the batch generator parameters.
type Config struct {
	// Window is the batching period. Validated at startup to be an integer
	// multiple of the sampling tick.
	Window time.Duration
	// WindowTicks is the number of samples in a full window (k).
	WindowTicks int
	// Threshold maps a sample count n to the required good-count,
	// ceil(threshold_fraction * n) in exact integer arithmetic.
	Threshold func(n uint64) uint64
	// Salt is appended to the bitmap before hashing; binds digests to a
	// deployment/run. May be empty.
	Salt []byte
	// PartialWindows selects skip-vs-emit behavior for underfull windows.
	PartialWindows config.PartialWindowMode
}

// Output is one generated batch together with the raw material a downstream
// prover or poster needs: the bitmap, the snapshot it came from, and the
// Merkle root over the snapshot.
type Output struct {
	Batch      attestor.Batch
	Bitmap     attestor.Bitmap
	Samples    []attestor.Sample
	SampleRoot []byte
}

// Generator drives batch generation on its own timer, independent of the
// sampler's.
type Generator struct {
	cfg  Config
	buf  *ring.Buffer
	emit func(context.Context, Output)
}

// New creates a Generator reading windows from buf. Each generated batch is
// handed to emit; emit runs on the timer goroutine and must hand expensive
// work (proving, posting) off to its own tasks rather than doing it inline.
func New(cfg Config, buf *ring.Buffer, emit func(context.Context, Output), mf monitoring.MetricFactory) *Generator {
	metricsOnce.Do(func() { setupMetrics(mf) })
	return &Generator{cfg: cfg, buf: buf, emit: emit}
}

// Run ticks until the context is cancelled. The first tick fires after one
// full window period, not immediately, so the buffer has a window's worth of
// samples to summarize.
func (g *Generator) Run(ctx context.Context) {
	klog.Infof("batcher: starting, window=%v (%d ticks) partial=%s", g.cfg.Window, g.cfg.WindowTicks, g.cfg.PartialWindows)
	first := true
	schedule.Every(ctx, g.cfg.Window, func(ctx context.Context) {
		if first {
			first = false
			return
		}
		g.Tick(ctx)
	})
	klog.Info("batcher: stopped")
}

// Tick takes a snapshot of the buffer and, if the partial-window policy
// allows, generates and emits one batch.
func (g *Generator) Tick(ctx context.Context) {
	snapshot := g.buf.Snapshot()
	if len(snapshot) == 0 {
		skippedCounter.Inc()
		klog.Warning("batcher: ring buffer empty, skipping batch")
		return
	}
	if len(snapshot) > g.cfg.WindowTicks {
		// The buffer may hold more history than one window; summarize
		// only the most recent window.
		snapshot = snapshot[len(snapshot)-g.cfg.WindowTicks:]
	}
	if len(snapshot) < g.cfg.WindowTicks && g.cfg.PartialWindows == config.PartialWindowSkip {
		skippedCounter.Inc()
		klog.Warningf("batcher: window underfull (%d/%d samples), skipping batch", len(snapshot), g.cfg.WindowTicks)
		return
	}

	out := Build(snapshot, g.cfg.Salt, g.cfg.Threshold)
	batchesCounter.Inc(boolLabel(out.Batch.MeetsThreshold()))
	lastWindowGood.Set(float64(out.Batch.Good))
	lastWindowTotal.Set(float64(out.Batch.N))

	if out.Batch.MeetsThreshold() {
		klog.Infof("batcher: batch n=%d good=%d threshold=%d hash=%v window=[%d,%d] compliant",
			out.Batch.N, out.Batch.Good, out.Batch.Threshold, out.Batch.BitmapHash, out.Batch.Window.Start, out.Batch.Window.End)
	} else {
		klog.Warningf("batcher: batch n=%d good=%d threshold=%d window=[%d,%d] NOT compliant",
			out.Batch.N, out.Batch.Good, out.Batch.Threshold, out.Batch.Window.Start, out.Batch.Window.End)
	}

	if g.emit != nil {
		g.emit(ctx, out)
	}
}

// Build summarizes an ordered, non-empty sample sequence into a batch. The
// window bounds come from the first and last sample timestamps, never from
// wall-clock tick time, so a batch is reproducible from stored data alone.
func Build(samples []attestor.Sample, salt []byte, threshold func(uint64) uint64) Output {
	bitmap := attestor.BitmapFromSamples(samples)
	n := uint64(len(samples))
	batch := attestor.Batch{
		N:          n,
		Good:       bitmap.Good(),
		Threshold:  threshold(n),
		BitmapHash: attestor.HashBitmap(bitmap, salt),
		Window: attestor.Window{
			Start: samples[0].Timestamp,
			End:   samples[len(samples)-1].Timestamp,
		},
	}
	return Output{
		Batch:      batch,
		Bitmap:     bitmap,
		Samples:    samples,
		SampleRoot: inclusion.Root(samples),
	}
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
