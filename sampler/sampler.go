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

// Package sampler turns the irregular stream of node-health observations
// into a clean boolean time series: one Sample per tick, produced by a
// three-tier liveness predicate over the health snapshot store.
package sampler

import (
	"context"
	"sync"
	"time"

	"github.com/google/trillian/monitoring"
	"k8s.io/klog/v2"

	attestor "github.com/da-uptime/attestor-go"
	"github.com/da-uptime/attestor-go/health"
	"github.com/da-uptime/attestor-go/ring"
	"github.com/da-uptime/attestor-go/schedule"
)

var (
	metricsOnce     sync.Once
	samplesCounter  monitoring.Counter // reason => count
	droppedForwards monitoring.Counter
	bufferOccupancy monitoring.Gauge
)

func setupMetrics(mf monitoring.MetricFactory) {
	if mf == nil {
		mf = monitoring.InertMetricFactory{}
	}
	samplesCounter = mf.NewCounter("samples_total", "Number of samples emitted, by reason", "reason")
	droppedForwards = mf.NewCounter("sample_forwards_dropped", "Number of samples dropped because the posting queue was full")
	bufferOccupancy = mf.NewGauge("ring_buffer_occupancy", "Number of samples currently held in the ring buffer")
}

// Config holds the predicate parameters. All durations are in whole seconds
// to match the second-granularity sample timestamps.
type Config struct {
	// Period between ticks.
	Tick time.Duration
	// MaxStalenessSecs is the staleness gate: an observation older than
	// this fails regardless of head movement.
	MaxStalenessSecs int64
	// GracePeriodSecs bounds the benign-skew window for a non-advancing
	// head. Inclusive: age == GracePeriodSecs still passes. Must be below
	// MaxStalenessSecs; config validation enforces this at startup.
	GracePeriodSecs int64
	// MinIncrement is the head advancement required for a tick to count
	// as advanced.
	MinIncrement int64
	// RequireSampledCount enables the sampled-count cross-check: a tick
	// that passes on head evidence is downgraded to a failure when the
	// secondary counter did not move.
	RequireSampledCount bool
}

// Sampler evaluates the liveness predicate on a fixed tick and appends the
// outcome to the ring buffer. It is the buffer's only writer.
type Sampler struct {
	cfg     Config
	store   *health.Store
	buf     *ring.Buffer
	forward chan<- attestor.Sample
	timeNow func() time.Time

	// Previous counter values, updated unconditionally after every tick so
	// advancement is always measured against the immediately preceding
	// tick, never the last successful one.
	prevHead         *int64
	prevSampledCount *int64
}

// New creates a Sampler reading from store and appending to buf. Samples are
// additionally forwarded to the (buffered) forward channel for Layer-1
// posting; the send never blocks, a full channel drops the forward and the
// sample survives only in the buffer and archive. forward may be nil.
func New(cfg Config, store *health.Store, buf *ring.Buffer, forward chan<- attestor.Sample, mf monitoring.MetricFactory) *Sampler {
	metricsOnce.Do(func() { setupMetrics(mf) })
	return &Sampler{
		cfg:     cfg,
		store:   store,
		buf:     buf,
		forward: forward,
		timeNow: time.Now,
	}
}

// Run ticks until the context is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	klog.Infof("sampler: starting, tick=%v staleness=%ds grace=%ds min_increment=%d cross_check=%t",
		s.cfg.Tick, s.cfg.MaxStalenessSecs, s.cfg.GracePeriodSecs, s.cfg.MinIncrement, s.cfg.RequireSampledCount)
	schedule.Every(ctx, s.cfg.Tick, func(ctx context.Context) {
		s.Tick()
	})
	klog.Info("sampler: stopped")
}

// Tick performs one liveness evaluation: read the snapshot store, apply the
// predicate, append to the ring buffer and forward the sample. It never
// blocks on I/O.
func (s *Sampler) Tick() {
	now := s.timeNow()
	obs, haveObs := s.store.Latest()
	sample := s.evaluate(now, obs, haveObs)

	if err := s.buf.Append(sample); err != nil {
		// Timestamp regression is a programming defect; abort the tick
		// rather than corrupt the window ordering.
		klog.Errorf("sampler: buffer append failed, tick aborted: %v", err)
		return
	}
	samplesCounter.Inc(sample.Reason.Code.String())
	bufferOccupancy.Set(float64(s.buf.Len()))

	if s.forward != nil {
		select {
		case s.forward <- sample:
		default:
			droppedForwards.Inc()
			klog.Warningf("sampler: posting queue full, sample at %d not forwarded", sample.Timestamp)
		}
	}

	if sample.OK {
		klog.V(1).Infof("sampler: ok head=%v sampled_count=%v reason=%v buffer=%d/%d",
			deref(sample.Head), deref(sample.SampledCount), sample.Reason, s.buf.Len(), s.buf.Capacity())
	} else {
		klog.Warningf("sampler: fail reason=%v head=%v sampled_count=%v",
			sample.Reason, deref(sample.Head), deref(sample.SampledCount))
	}
}

// evaluate applies the three-tier predicate plus the sampled-count
// cross-check and updates the carried state. haveObs is false when the store
// has never been written.
func (s *Sampler) evaluate(now time.Time, obs health.Observation, haveObs bool) attestor.Sample {
	sample := attestor.Sample{
		Timestamp:    now.Unix(),
		Head:         obs.Head,
		SampledCount: obs.SampledCount,
	}
	sample.OK, sample.Reason = s.predicate(now, obs, haveObs)

	s.prevHead = obs.Head
	s.prevSampledCount = obs.SampledCount
	return sample
}

func (s *Sampler) predicate(now time.Time, obs health.Observation, haveObs bool) (bool, attestor.Reason) {
	if !haveObs {
		return false, attestor.Reason{Code: attestor.ReasonNoData}
	}
	age := now.Unix() - obs.LastUpdate.Unix()

	// Tier 1: staleness gate, regardless of head movement.
	if age > s.cfg.MaxStalenessSecs {
		return false, attestor.Reason{Code: attestor.ReasonStale}
	}
	if obs.Head == nil {
		return false, attestor.Reason{Code: attestor.ReasonNoData}
	}

	ok, reason := s.headCheck(obs, age)
	if !ok {
		return false, reason
	}
	// Cross-check: head evidence alone does not count when the secondary
	// work counter is enabled and did not move.
	if s.cfg.RequireSampledCount && !s.sampledCountAdvanced(obs) {
		return false, attestor.Reason{Code: attestor.ReasonHeadersNotAdvanced}
	}
	return true, reason
}

func (s *Sampler) headCheck(obs health.Observation, age int64) (bool, attestor.Reason) {
	if s.prevHead == nil {
		// First tick with head data: there is no baseline to measure
		// advancement against. The staleness gate has already passed, so
		// the reading counts.
		return true, attestor.Reason{Code: attestor.ReasonFirstSample}
	}
	// Tier 2: advancement check.
	if delta := *obs.Head - *s.prevHead; delta >= s.cfg.MinIncrement {
		return true, attestor.Reason{Code: attestor.ReasonAdvanced, HeadDelta: delta}
	}
	// Tier 3: grace-period fallback. A non-advancing head on fresh data is
	// timing skew between the reporter and the tick boundary, not a fault.
	if age <= s.cfg.GracePeriodSecs {
		return true, attestor.Reason{Code: attestor.ReasonFresh, AgeSecs: age}
	}
	return false, attestor.Reason{Code: attestor.ReasonStuck}
}

func (s *Sampler) sampledCountAdvanced(obs health.Observation) bool {
	if obs.SampledCount == nil {
		return false
	}
	if s.prevSampledCount == nil {
		// First reading of the counter; nothing to compare against.
		return true
	}
	return *obs.SampledCount-*s.prevSampledCount >= 1
}

func deref(v *int64) interface{} {
	if v == nil {
		return "nil"
	}
	return *v
}
