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

// Package jobpool runs the pipeline's posting and proving work on a fixed
// set of worker goroutines, so a slow ledger submission never blocks a
// sampling tick.
package jobpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Errors that the Pool API might return.
var (
	ErrPoolStopped  = errors.New("pool stopped")
	ErrDrainExpired = errors.New("jobs still running after drain grace expired")
)

// Job is an arbitrary function that can be run by workers.
type Job func()

// Pool runs Jobs on a fixed number of worker goroutines with a buffered
// queue in front of them.
type Pool struct {
	workers int
	jobs    chan Job
	wg      sync.WaitGroup

	mu      sync.Mutex
	stopped bool

	sem      *semaphore.Weighted
	inFlight sync.WaitGroup
}

// New creates a Pool of the given number of workers and a queue of buf
// pending Jobs. If buf == 0 a submission hands the Job straight to a worker,
// waiting for one to become free. maxInFlight bounds how many Jobs may be
// queued or running at once (no bound if <= 0).
func New(workers, buf, maxInFlight int) (*Pool, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("num of workers %d <= 0, want > 0", workers)
	} else if buf < 0 {
		return nil, fmt.Errorf("buffer size %d < 0, want >= 0", buf)
	}
	p := &Pool{workers: workers, jobs: make(chan Job, buf)}
	if maxInFlight > 0 {
		p.sem = semaphore.NewWeighted(int64(maxInFlight))
	}
	return p, nil
}

// Start launches the workers and returns.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
			}
		}()
	}
}

// Submit enqueues a Job. It blocks while the queue is full or the in-flight
// bound is reached, and fails if ctx expires first or the Pool has stopped.
// Once accepted, the Job is guaranteed to run unless the drain grace expires
// before a worker picks it up.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	p.inFlight.Add(1)

	wrapped := Job(func() {
		defer p.release()
		job()
	})

	// The lock is held across the channel write so StopWithin cannot close
	// the channel underneath a pending send. Submitters serialize here, which
	// is fine for the handful of producers this pipeline runs.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		p.release()
		return ErrPoolStopped
	}
	select {
	case p.jobs <- wrapped:
		return nil
	case <-ctx.Done():
		p.release()
		return ctx.Err()
	}
}

func (p *Pool) release() {
	if p.sem != nil {
		p.sem.Release(1)
	}
	p.inFlight.Done()
}

// StopWithin rejects further submissions and waits up to grace for queued
// and running Jobs to finish. It returns ErrDrainExpired if work was still
// outstanding when the grace ran out. The Pool must not be used afterwards.
func (p *Pool) StopWithin(grace time.Duration) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.jobs)
	}
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.inFlight.Wait()
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-time.After(grace):
		return ErrDrainExpired
	}
}
