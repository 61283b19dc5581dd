// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package chatclient

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

func TestExponentialJitter_Doubles(t *testing.T) {
	b := newExponentialJitter(100*time.Millisecond, time.Second, 0)

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, w := range want {
		if got := b.NextBackOff(); got != w {
			t.Errorf("attempt %d: got %v, want %v", i, got, w)
		}
	}

	b.Reset()
	if got := b.NextBackOff(); got != 100*time.Millisecond {
		t.Errorf("after Reset: got %v, want 100ms", got)
	}
}

func TestExponentialJitter_AddsBoundedJitter(t *testing.T) {
	b := newExponentialJitter(time.Second, time.Minute, 500*time.Millisecond)
	for i := 0; i < 50; i++ {
		b.Reset()
		got := b.NextBackOff()
		if got < time.Second || got > 1500*time.Millisecond {
			t.Fatalf("delay %v outside [1s, 1.5s]", got)
		}
	}
}

func TestExponentialJitter_LargeAttemptDoesNotOverflow(t *testing.T) {
	b := newExponentialJitter(time.Second, 30*time.Second, 0)
	b.attempt = 62
	if got := b.NextBackOff(); got != 30*time.Second {
		t.Errorf("got %v, want cap 30s", got)
	}
}

func TestReconnectBackOff_StopsAfterMaxAttempts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 3
	cfg.MaxJitter = 0
	b := newReconnectBackOff(cfg)

	for i := 0; i < 3; i++ {
		if got := b.NextBackOff(); got == backoff.Stop {
			t.Fatalf("attempt %d stopped early", i)
		}
	}
	if got := b.NextBackOff(); got != backoff.Stop {
		t.Errorf("expected Stop after 3 attempts, got %v", got)
	}

	b.Reset()
	if got := b.NextBackOff(); got != time.Second {
		t.Errorf("after Reset: got %v, want 1s", got)
	}
}
