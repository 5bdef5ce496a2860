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

package sampler

import (
	"strings"
	"testing"
	"time"

	attestor "github.com/da-uptime/attestor-go"
	"github.com/da-uptime/attestor-go/health"
	"github.com/da-uptime/attestor-go/ring"
)

var testConfig = Config{
	Tick:                30 * time.Second,
	MaxStalenessSecs:    120,
	GracePeriodSecs:     45,
	MinIncrement:        1,
	RequireSampledCount: false,
}

func int64Ptr(v int64) *int64 { return &v }

func newTestSampler(t *testing.T, cfg Config) (*Sampler, *health.Store, *ring.Buffer) {
	t.Helper()
	store := health.NewStore()
	buf, err := ring.NewBuffer(32)
	if err != nil {
		t.Fatal(err)
	}
	s := New(cfg, store, buf, nil, nil)
	return s, store, buf
}

// tickAt runs one tick at the given wall-clock second and returns the sample
// it appended.
func tickAt(t *testing.T, s *Sampler, buf *ring.Buffer, at int64) attestor.Sample {
	t.Helper()
	s.timeNow = func() time.Time { return time.Unix(at, 0) }
	s.Tick()
	snap := buf.Snapshot()
	if len(snap) == 0 {
		t.Fatal("tick appended nothing")
	}
	return snap[len(snap)-1]
}

func TestHeadAdvances(t *testing.T) {
	s, store, buf := newTestSampler(t, testConfig)

	store.RecordObservation(int64Ptr(100), nil, time.Unix(1000, 0))
	tickAt(t, s, buf, 1000)

	store.RecordObservation(int64Ptr(102), nil, time.Unix(1025, 0))
	got := tickAt(t, s, buf, 1030)

	if !got.OK {
		t.Errorf("ok=false, want true (reason=%v)", got.Reason)
	}
	if !strings.Contains(got.Reason.String(), "advanced") {
		t.Errorf("reason=%q, want it to contain %q", got.Reason, "advanced")
	}
	if got.Reason.HeadDelta != 2 {
		t.Errorf("HeadDelta=%d, want 2", got.Reason.HeadDelta)
	}
}

func TestFirstHeadReadingPasses(t *testing.T) {
	s, store, buf := newTestSampler(t, testConfig)

	// The observation is 60s old: past the grace period but inside the
	// staleness gate. With no previous head to measure advancement
	// against, the first reading counts.
	store.RecordObservation(int64Ptr(100), nil, time.Unix(1000, 0))
	got := tickAt(t, s, buf, 1060)
	if !got.OK || got.Reason.Code != attestor.ReasonFirstSample {
		t.Errorf("got ok=%t reason=%v, want ok=true reason=first_sample", got.OK, got.Reason)
	}

	// The next tick has a baseline: an unchanged head on the same old
	// observation is stuck.
	got = tickAt(t, s, buf, 1090)
	if got.OK || got.Reason.Code != attestor.ReasonStuck {
		t.Errorf("got ok=%t reason=%v, want ok=false reason=stuck", got.OK, got.Reason)
	}
}

func TestGracePeriod(t *testing.T) {
	s, store, buf := newTestSampler(t, testConfig)

	store.RecordObservation(int64Ptr(100), nil, time.Unix(1000, 0))
	tickAt(t, s, buf, 1000)

	// Head unchanged, but the observation is only 1s old.
	store.RecordObservation(int64Ptr(100), nil, time.Unix(1029, 0))
	got := tickAt(t, s, buf, 1030)

	if !got.OK {
		t.Errorf("ok=false, want true (reason=%v)", got.Reason)
	}
	if !strings.Contains(got.Reason.String(), "fresh") {
		t.Errorf("reason=%q, want it to contain %q", got.Reason, "fresh")
	}
}

func TestGracePeriodBoundaryInclusive(t *testing.T) {
	s, store, buf := newTestSampler(t, testConfig)

	store.RecordObservation(int64Ptr(100), nil, time.Unix(1000, 0))
	tickAt(t, s, buf, 1000)

	// age == grace_period_secs exactly: still passes.
	store.RecordObservation(int64Ptr(100), nil, time.Unix(1000, 0))
	got := tickAt(t, s, buf, 1045)
	if !got.OK || got.Reason.Code != attestor.ReasonFresh {
		t.Errorf("at age=45s got ok=%t reason=%v, want ok=true reason=fresh", got.OK, got.Reason)
	}

	// One second past the grace period: stuck.
	got = tickAt(t, s, buf, 1046)
	if got.OK || got.Reason.Code != attestor.ReasonStuck {
		t.Errorf("at age=46s got ok=%t reason=%v, want ok=false reason=stuck", got.OK, got.Reason)
	}
}

func TestStuck(t *testing.T) {
	s, store, buf := newTestSampler(t, testConfig)

	store.RecordObservation(int64Ptr(100), nil, time.Unix(1000, 0))
	tickAt(t, s, buf, 1000)

	// Head unchanged and the observation is 50s old: outside grace,
	// inside staleness.
	got := tickAt(t, s, buf, 1050)
	if got.OK {
		t.Errorf("ok=true, want false")
	}
	if got, want := got.Reason.String(), "stuck"; got != want {
		t.Errorf("reason=%q, want %q", got, want)
	}
}

func TestStaleOverridesHeadMovement(t *testing.T) {
	s, store, buf := newTestSampler(t, testConfig)

	store.RecordObservation(int64Ptr(100), nil, time.Unix(1000, 0))
	tickAt(t, s, buf, 1000)

	// Head moved, but the observation is 150s old: the staleness gate
	// fires first.
	store.RecordObservation(int64Ptr(200), nil, time.Unix(1000, 0))
	got := tickAt(t, s, buf, 1150)
	if got.OK {
		t.Errorf("ok=true, want false")
	}
	if got, want := got.Reason.String(), "stale"; got != want {
		t.Errorf("reason=%q, want %q", got, want)
	}
}

func TestNoObservations(t *testing.T) {
	s, _, buf := newTestSampler(t, testConfig)
	got := tickAt(t, s, buf, 1000)
	if got.OK || got.Reason.Code != attestor.ReasonNoData {
		t.Errorf("got ok=%t reason=%v, want ok=false reason=no_data", got.OK, got.Reason)
	}
}

func TestSampledCountCrossCheck(t *testing.T) {
	cfg := testConfig
	cfg.RequireSampledCount = true
	s, store, buf := newTestSampler(t, cfg)

	store.RecordObservation(int64Ptr(100), int64Ptr(5000), time.Unix(1000, 0))
	tickAt(t, s, buf, 1000)

	// Head advances but sampled-count does not: downgraded.
	store.RecordObservation(int64Ptr(102), int64Ptr(5000), time.Unix(1029, 0))
	got := tickAt(t, s, buf, 1030)
	if got.OK {
		t.Errorf("ok=true, want false")
	}
	if got, want := got.Reason.String(), "headers_not_advanced"; got != want {
		t.Errorf("reason=%q, want %q", got, want)
	}

	// Both advance: passes with the head reason.
	store.RecordObservation(int64Ptr(104), int64Ptr(5002), time.Unix(1059, 0))
	got = tickAt(t, s, buf, 1060)
	if !got.OK || got.Reason.Code != attestor.ReasonAdvanced {
		t.Errorf("got ok=%t reason=%v, want ok=true reason=advanced", got.OK, got.Reason)
	}
}

func TestMissingSampledCountFailsCrossCheck(t *testing.T) {
	cfg := testConfig
	cfg.RequireSampledCount = true
	s, store, buf := newTestSampler(t, cfg)

	store.RecordObservation(int64Ptr(100), int64Ptr(5000), time.Unix(1000, 0))
	tickAt(t, s, buf, 1000)

	// The reporter stopped including the secondary counter; nil means the
	// cross-check cannot pass. The stored value persists, so this scenario
	// needs a fresh store write path: simulate via a sampler whose store
	// never saw the counter.
	s2, store2, buf2 := newTestSampler(t, cfg)
	store2.RecordObservation(int64Ptr(100), nil, time.Unix(1000, 0))
	tickAt(t, s2, buf2, 1000)
	store2.RecordObservation(int64Ptr(102), nil, time.Unix(1029, 0))
	got := tickAt(t, s2, buf2, 1030)
	if got.OK || got.Reason.Code != attestor.ReasonHeadersNotAdvanced {
		t.Errorf("got ok=%t reason=%v, want ok=false reason=headers_not_advanced", got.OK, got.Reason)
	}
}

func TestPrevStateUpdatedUnconditionally(t *testing.T) {
	s, store, buf := newTestSampler(t, testConfig)

	store.RecordObservation(int64Ptr(100), nil, time.Unix(1000, 0))
	tickAt(t, s, buf, 1000)

	// Tick 2 fails (stuck at 100, 50s old).
	got := tickAt(t, s, buf, 1050)
	if got.OK {
		t.Fatalf("tick 2: ok=true, want false")
	}

	// Tick 3: head=101. Advancement is measured against the immediately
	// preceding tick (100), not the last successful one, so +1 passes.
	store.RecordObservation(int64Ptr(101), nil, time.Unix(1079, 0))
	got = tickAt(t, s, buf, 1080)
	if !got.OK || got.Reason.HeadDelta != 1 {
		t.Errorf("tick 3: got ok=%t reason=%v, want ok=true advanced(+1)", got.OK, got.Reason)
	}
}

func TestMinIncrement(t *testing.T) {
	cfg := testConfig
	cfg.MinIncrement = 5
	s, store, buf := newTestSampler(t, cfg)

	store.RecordObservation(int64Ptr(100), nil, time.Unix(1000, 0))
	tickAt(t, s, buf, 1000)

	// +4 is below the required increment and the data is 50s old.
	store.RecordObservation(int64Ptr(104), nil, time.Unix(1000, 0))
	got := tickAt(t, s, buf, 1050)
	if got.OK || got.Reason.Code != attestor.ReasonStuck {
		t.Errorf("got ok=%t reason=%v, want ok=false reason=stuck", got.OK, got.Reason)
	}

	// +5 passes.
	store.RecordObservation(int64Ptr(109), nil, time.Unix(1079, 0))
	got = tickAt(t, s, buf, 1080)
	if !got.OK || got.Reason.HeadDelta != 5 {
		t.Errorf("got ok=%t reason=%v, want ok=true advanced(+5)", got.OK, got.Reason)
	}
}

func TestForwardNonBlocking(t *testing.T) {
	store := health.NewStore()
	buf, err := ring.NewBuffer(8)
	if err != nil {
		t.Fatal(err)
	}
	forward := make(chan attestor.Sample, 1)
	s := New(testConfig, store, buf, forward, nil)

	store.RecordObservation(int64Ptr(100), nil, time.Unix(1000, 0))
	// Two ticks against a 1-slot channel: the second forward is dropped
	// but both samples land in the buffer.
	tickAt(t, s, buf, 1000)
	tickAt(t, s, buf, 1030)

	if got, want := buf.Len(), 2; got != want {
		t.Errorf("buffer length %d, want %d", got, want)
	}
	if got, want := len(forward), 1; got != want {
		t.Errorf("forward queue length %d, want %d", got, want)
	}
}
