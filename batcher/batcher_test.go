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

package batcher

import (
	"context"
	"testing"
	"time"

	attestor "github.com/da-uptime/attestor-go"
	"github.com/da-uptime/attestor-go/config"
	"github.com/da-uptime/attestor-go/ring"
)

// threshold95 is ceil(0.95 * n) in basis points, matching the default config.
func threshold95(n uint64) uint64 {
	return (n*9500 + 9999) / 10000
}

func testWindow(n int, failAt map[int]bool) []attestor.Sample {
	samples := make([]attestor.Sample, n)
	for i := range samples {
		samples[i] = attestor.Sample{Timestamp: int64(1000 + 30*i), OK: !failAt[i]}
	}
	return samples
}

func TestBuildCounts(t *testing.T) {
	samples := testWindow(20, map[int]bool{3: true, 11: true})
	out := Build(samples, nil, threshold95)

	if got, want := out.Batch.N, uint64(20); got != want {
		t.Errorf("N=%d, want %d", got, want)
	}
	if got, want := out.Batch.Good, uint64(18); got != want {
		t.Errorf("Good=%d, want %d", got, want)
	}
	if got, want := out.Batch.Threshold, uint64(19); got != want {
		t.Errorf("Threshold=%d, want %d", got, want)
	}
	// good + (n - good) = n always holds by construction; check the
	// window derives from sample timestamps.
	if got, want := out.Batch.Window, (attestor.Window{Start: 1000, End: 1570}); got != want {
		t.Errorf("Window=%+v, want %+v", got, want)
	}
	if out.Batch.MeetsThreshold() {
		t.Error("MeetsThreshold()=true with good=18 < threshold=19")
	}
	if got, want := len(out.Bitmap), 20; got != want {
		t.Errorf("len(Bitmap)=%d, want %d", got, want)
	}
	if got, want := len(out.SampleRoot), 32; got != want {
		t.Errorf("len(SampleRoot)=%d, want %d", got, want)
	}
}

func TestBuildDeterministic(t *testing.T) {
	samples := testWindow(20, map[int]bool{7: true})
	salt := []byte("deployment-1")

	a := Build(samples, salt, threshold95)
	b := Build(samples, salt, threshold95)
	if a.Batch.BitmapHash != b.Batch.BitmapHash {
		t.Errorf("same inputs produced different hashes: %v vs %v", a.Batch.BitmapHash, b.Batch.BitmapHash)
	}

	c := Build(samples, []byte("deployment-2"), threshold95)
	if a.Batch.BitmapHash == c.Batch.BitmapHash {
		t.Error("different salts produced the same hash")
	}
}

func TestThresholdBoundaries(t *testing.T) {
	for _, test := range []struct {
		n    int
		want uint64
	}{
		{20, 19},
		{19, 19},
		{1, 1},
	} {
		out := Build(testWindow(test.n, nil), nil, threshold95)
		if got := out.Batch.Threshold; got != test.want {
			t.Errorf("n=%d: Threshold=%d, want %d", test.n, got, test.want)
		}
	}
}

func newTestGenerator(t *testing.T, mode config.PartialWindowMode, emitted *[]Output) (*Generator, *ring.Buffer) {
	t.Helper()
	buf, err := ring.NewBuffer(32)
	if err != nil {
		t.Fatal(err)
	}
	cfg := Config{
		Window:         10 * time.Minute,
		WindowTicks:    20,
		Threshold:      threshold95,
		PartialWindows: mode,
	}
	g := New(cfg, buf, func(_ context.Context, out Output) {
		*emitted = append(*emitted, out)
	}, nil)
	return g, buf
}

func TestTickSkipsUnderfullWindow(t *testing.T) {
	var emitted []Output
	g, buf := newTestGenerator(t, config.PartialWindowSkip, &emitted)

	// Empty buffer: nothing.
	g.Tick(context.Background())
	if len(emitted) != 0 {
		t.Fatalf("emitted %d batches from empty buffer, want 0", len(emitted))
	}

	// 5 of 20 samples: still skipped.
	for _, s := range testWindow(5, nil) {
		if err := buf.Append(s); err != nil {
			t.Fatal(err)
		}
	}
	g.Tick(context.Background())
	if len(emitted) != 0 {
		t.Fatalf("emitted %d batches from underfull window, want 0", len(emitted))
	}
}

func TestTickEmitsPartialWindowWhenConfigured(t *testing.T) {
	var emitted []Output
	g, buf := newTestGenerator(t, config.PartialWindowEmit, &emitted)

	for _, s := range testWindow(5, nil) {
		if err := buf.Append(s); err != nil {
			t.Fatal(err)
		}
	}
	g.Tick(context.Background())
	if len(emitted) != 1 {
		t.Fatalf("emitted %d batches, want 1", len(emitted))
	}
	if got, want := emitted[0].Batch.N, uint64(5); got != want {
		t.Errorf("N=%d, want %d", got, want)
	}
}

func TestTickUsesMostRecentWindow(t *testing.T) {
	var emitted []Output
	g, buf := newTestGenerator(t, config.PartialWindowSkip, &emitted)

	// 30 samples in a 32-slot buffer against a 20-tick window: only the
	// most recent 20 belong to this window.
	for _, s := range testWindow(30, nil) {
		if err := buf.Append(s); err != nil {
			t.Fatal(err)
		}
	}
	g.Tick(context.Background())
	if len(emitted) != 1 {
		t.Fatalf("emitted %d batches, want 1", len(emitted))
	}
	got := emitted[0].Batch
	if got.N != 20 {
		t.Errorf("N=%d, want 20", got.N)
	}
	// Samples 10..29 → timestamps 1300..1870.
	if want := (attestor.Window{Start: 1300, End: 1870}); got.Window != want {
		t.Errorf("Window=%+v, want %+v", got.Window, want)
	}
}
