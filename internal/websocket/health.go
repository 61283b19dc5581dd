// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package websocket

import (
	"context"
	"time"

	"github.com/tomtom215/buddichat/internal/logging"
	"github.com/tomtom215/buddichat/internal/metrics"
)

// HealthMonitor evicts connections that stop answering pings.
type HealthMonitor struct {
	hub      *Hub
	interval time.Duration
}

// NewHealthMonitor creates a monitor that probes every interval.
func NewHealthMonitor(hub *Hub, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthMonitor{hub: hub, interval: interval}
}

// Probe runs one liveness round. A client that has not answered the
// previous round is closed with CloseEvicted and unregistered; every other
// client is marked not alive and pinged. It returns the number evicted.
func (m *HealthMonitor) Probe() int {
	metrics.HealthProbes.Inc()

	evicted := 0
	m.hub.ForEach(func(userID string, client *Client) {
		if !client.alive.Swap(false) {
			m.hub.Unregister(client)
			client.Close(CloseEvicted, "liveness probe unanswered")
			metrics.HealthEvictions.Inc()
			evicted++
			logging.Info().
				Str("user_id", userID).
				Str("connection_id", client.ConnectionID()).
				Time("last_pong_at", client.LastPongAt()).
				Msg("Evicted unresponsive WebSocket client")
			return
		}
		if err := client.Ping(); err != nil {
			logging.Debug().Err(err).Str("user_id", userID).Msg("Ping failed")
		}
	})
	return evicted
}

// Serve probes on every tick until ctx is done.
func (m *HealthMonitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := m.Probe(); n > 0 {
				logging.Debug().Int("evicted", n).Msg("Health probe round complete")
			}
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (m *HealthMonitor) String() string {
	return "health-monitor"
}
