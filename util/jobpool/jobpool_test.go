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

package jobpool

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPool(t *testing.T) {
	for _, tc := range []struct {
		desc    string
		workers int
		buf     int
		wantErr string
	}{
		{desc: "neg-workers", workers: -10, wantErr: "num of workers -10 <= 0"},
		{desc: "zero-workers", workers: 0, wantErr: "num of workers 0 <= 0"},
		{desc: "neg-buf", workers: 1, buf: -10, wantErr: "buffer size -10 < 0"},
		{desc: "ok-no-buf", workers: 3},
		{desc: "ok-buf", workers: 2, buf: 10},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			pool, err := New(tc.workers, tc.buf, 0)
			if len(tc.wantErr) > 0 && (err == nil || !strings.Contains(err.Error(), tc.wantErr)) {
				t.Errorf("New(): err=%v, want err containing %v", err, tc.wantErr)
			} else if len(tc.wantErr) == 0 && err != nil {
				t.Errorf("New(): err=%v, want nil", err)
			}
			if err != nil {
				return
			}
			if pool == nil {
				t.Fatalf("Pool is nil")
			}

			pool.Start()
			if err := pool.StopWithin(time.Second); err != nil {
				t.Errorf("StopWithin(): %v", err)
			}
		})
	}
}

func TestSubmitRunsAllJobs(t *testing.T) {
	ctx := context.Background()
	pool, err := New(10, 0, 0)
	if err != nil {
		t.Fatalf("New(): %v", err)
	}
	pool.Start()

	var sum int32
	for i := int32(1); i <= 20; i++ {
		i := i
		if err := pool.Submit(ctx, Job(func() {
			atomic.AddInt32(&sum, i)
		})); err != nil {
			t.Fatalf("Submit(): %v", err)
		}
	}
	if err := pool.StopWithin(time.Second); err != nil {
		t.Errorf("StopWithin(): %v", err)
	}

	if got, want := atomic.LoadInt32(&sum), int32(210); got != want {
		t.Errorf("sum=%d, want %d", got, want)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	ctx := context.Background()
	pool, err := New(2, 0, 0)
	if err != nil {
		t.Fatalf("New(): %v", err)
	}
	pool.Start()
	if err := pool.StopWithin(time.Second); err != nil {
		t.Errorf("StopWithin(): %v", err)
	}

	if err := pool.Submit(ctx, Job(func() {})); err != ErrPoolStopped {
		t.Errorf("Submit(): err=%v, want %v", err, ErrPoolStopped)
	}
}

func TestSubmitHonorsContext(t *testing.T) {
	ctx := context.Background()
	pool, err := New(1, 0, 0)
	if err != nil {
		t.Fatalf("New(): %v", err)
	}
	pool.Start()

	// Occupy the only worker.
	release := make(chan struct{})
	if err := pool.Submit(ctx, Job(func() { <-release })); err != nil {
		t.Fatalf("Submit(): %v", err)
	}

	// No free worker and no buffer, so the next Submit must time out.
	done := false
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Millisecond)
	defer cancel()
	if err := pool.Submit(ctx2, Job(func() { done = true })); err != context.DeadlineExceeded {
		t.Errorf("Submit(): err=%v, want %v", err, context.DeadlineExceeded)
	}
	if done {
		t.Error("unexpected Job completion")
	}

	close(release)
	if err := pool.StopWithin(time.Second); err != nil {
		t.Errorf("StopWithin(): %v", err)
	}
}

func TestSubmitHonorsInFlightBound(t *testing.T) {
	ctx := context.Background()
	pool, err := New(3, 7, 2)
	if err != nil {
		t.Fatalf("New(): %v", err)
	}
	pool.Start()

	// Fill the in-flight quota with blocking jobs; buffer space remains, but
	// the bound must win.
	release := make(chan struct{})
	for i := 0; i < 2; i++ {
		if err := pool.Submit(ctx, Job(func() { <-release })); err != nil {
			t.Fatalf("Submit(): %v", err)
		}
	}

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Millisecond)
	defer cancel()
	if err := pool.Submit(ctx2, Job(func() {})); err != context.DeadlineExceeded {
		t.Errorf("Submit(): err=%v, want %v", err, context.DeadlineExceeded)
	}

	close(release)
	if err := pool.StopWithin(time.Second); err != nil {
		t.Errorf("StopWithin(): %v", err)
	}
}

func TestStopWithinExpires(t *testing.T) {
	ctx := context.Background()
	pool, err := New(1, 0, 0)
	if err != nil {
		t.Fatalf("New(): %v", err)
	}
	pool.Start()

	release := make(chan struct{})
	defer close(release)
	if err := pool.Submit(ctx, Job(func() { <-release })); err != nil {
		t.Fatalf("Submit(): %v", err)
	}

	if err := pool.StopWithin(5 * time.Millisecond); err != ErrDrainExpired {
		t.Errorf("StopWithin(): err=%v, want %v", err, ErrDrainExpired)
	}
}
