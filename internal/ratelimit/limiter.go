// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

// Package ratelimit implements the per-user fixed-window limiter applied to
// inbound chat messages.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/buddichat/internal/logging"
	"github.com/tomtom215/buddichat/internal/metrics"
)

// window is one user's counting window.
type window struct {
	start time.Time
	count int
}

// Limiter counts messages per user in fixed windows.
//
// A window opens on the first message and resets once window has elapsed
// since its start. The message that pushes the count past ceiling, and every
// message after it in the same window, is rejected.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	window  time.Duration
	ceiling int

	sweepInterval time.Duration
	now           func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithSweepInterval sets how often Serve evicts idle windows.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) { l.sweepInterval = d }
}

// New creates a limiter allowing ceiling messages per window of size.
func New(size time.Duration, ceiling int, opts ...Option) *Limiter {
	if size <= 0 {
		size = time.Minute
	}
	if ceiling <= 0 {
		ceiling = 60
	}
	l := &Limiter{
		windows:       make(map[string]*window),
		window:        size,
		ceiling:       ceiling,
		sweepInterval: 5 * time.Minute,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records one message for userID and reports whether it is within
// the ceiling.
func (l *Limiter) Allow(userID string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[userID]
	if !ok {
		w = &window{start: now}
		l.windows[userID] = w
	} else if now.Sub(w.start) >= l.window {
		w.start = now
		w.count = 0
	}
	w.count++

	if w.count > l.ceiling {
		metrics.RateLimitRejections.Inc()
		return false
	}
	return true
}

// Forget drops userID's window, resetting its budget.
func (l *Limiter) Forget(userID string) {
	l.mu.Lock()
	delete(l.windows, userID)
	l.mu.Unlock()
}

// Sweep evicts windows that have already expired and returns the number
// removed. An expired window would reset on the next Allow anyway.
func (l *Limiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for userID, w := range l.windows {
		if now.Sub(w.start) >= l.window {
			delete(l.windows, userID)
			removed++
		}
	}
	metrics.RateLimitTrackedUsers.Set(float64(len(l.windows)))
	return removed
}

// Len returns the number of tracked windows.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Serve runs the periodic sweeper until ctx is cancelled.
func (l *Limiter) Serve(ctx context.Context) error {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				logging.Debug().Int("removed", n).Msg("Swept idle rate limit windows")
			}
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (l *Limiter) String() string {
	return "rate-limit-sweeper"
}
