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

package poster

import (
	"math/rand"
	"sync"
	"time"
)

const (
	// maximum backoff is base * 2^(maxMultiplier-1), 128 seconds at the
	// default one-second base
	maxMultiplier = 8
	maxJitter     = 250 * time.Millisecond
)

// backoff tracks the shared retry state of a poster: consecutive failures
// raise the wait exponentially, successes lower it again. The window is
// shared across workers so a struggling ledger is not hammered in parallel.
type backoff struct {
	mu         sync.RWMutex
	base       time.Duration // one second when zero
	multiplier uint
	notBefore  time.Time
}

func (b *backoff) unit() time.Duration {
	if b.base > 0 {
		return b.base
	}
	return time.Second
}

// set arms the backoff and returns how long to wait. A non-nil override
// (e.g. a server-provided Retry-After) extends the window if it is longer
// than the current one.
func (b *backoff) set(override *time.Duration) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.notBefore.After(time.Now()) {
		if override != nil {
			notBefore := time.Now().Add(*override)
			if notBefore.After(b.notBefore) {
				b.notBefore = notBefore
			}
		}
		return time.Until(b.notBefore)
	}
	var wait time.Duration
	if override != nil {
		wait = *override
	} else {
		if b.multiplier < maxMultiplier {
			b.multiplier++
		}
		wait = b.unit() * time.Duration(1<<(b.multiplier-1))
	}
	b.notBefore = time.Now().Add(wait)
	return wait
}

// decreaseMultiplier rewards a success by stepping the exponent back down.
func (b *backoff) decreaseMultiplier() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.multiplier > 0 {
		b.multiplier--
	}
}

// until returns when the next attempt may start, with jitter added while a
// backoff window is armed so concurrent posters do not fire in lockstep.
func (b *backoff) until() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.notBefore.Before(time.Now()) {
		return b.notBefore
	}
	return b.notBefore.Add(time.Millisecond * time.Duration(rand.Intn(int(maxJitter.Milliseconds()))))
}
