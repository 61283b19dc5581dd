// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package services

import (
	"context"
	"time"

	"github.com/tomtom215/buddichat/internal/logging"
)

// Periodic runs a housekeeping function on a fixed interval. The function
// returns the number of items it removed, which is logged at debug level
// when non-zero.
type Periodic struct {
	name     string
	interval time.Duration
	fn       func() int
}

// NewPeriodic creates a periodic service. interval defaults to one minute.
func NewPeriodic(name string, interval time.Duration, fn func() int) *Periodic {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Periodic{name: name, interval: interval, fn: fn}
}

// Serve implements suture.Service.
func (p *Periodic) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := p.fn(); n > 0 {
				logging.Debug().Str("service", p.name).Int("removed", n).Msg("Housekeeping pass")
			}
		}
	}
}

// String implements fmt.Stringer for suture events.
func (p *Periodic) String() string {
	return p.name
}
