// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package chatclient

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// exponentialJitter yields base*2^attempt plus a uniform jitter in
// [0, maxJitter], never exceeding maxDelay before jitter is added.
type exponentialJitter struct {
	base      time.Duration
	maxDelay  time.Duration
	maxJitter time.Duration
	attempt   int
	jitter    func(limit time.Duration) time.Duration
}

func newExponentialJitter(base, maxDelay, maxJitter time.Duration) *exponentialJitter {
	return &exponentialJitter{
		base:      base,
		maxDelay:  maxDelay,
		maxJitter: maxJitter,
		jitter:    randomJitter,
	}
}

// NextBackOff implements backoff.BackOff.
func (b *exponentialJitter) NextBackOff() time.Duration {
	delay := b.maxDelay
	// Shifting past 30 overflows for any practical base.
	if b.attempt < 31 {
		if d := b.base << b.attempt; d > 0 && d < b.maxDelay {
			delay = d
		}
	}
	b.attempt++
	return delay + b.jitter(b.maxJitter)
}

// Reset implements backoff.BackOff.
func (b *exponentialJitter) Reset() {
	b.attempt = 0
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(limit) + 1))
}

// newReconnectBackOff caps the jittered policy at maxAttempts retries.
func newReconnectBackOff(cfg Config) backoff.BackOff {
	policy := newExponentialJitter(cfg.BaseDelay, cfg.MaxDelay, cfg.MaxJitter)
	return backoff.WithMaxRetries(policy, uint64(cfg.MaxAttempts))
}
