// Buddichat - Real-time Chat Fan-out Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buddichat

package authz

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/tomtom215/buddichat/internal/logging"
	"github.com/tomtom215/buddichat/internal/metrics"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Actions checked against the policy.
const (
	ActionJoin = "join"
	ActionSend = "send"
)

// Config configures the enforcer.
type Config struct {
	// PolicyPath is a CSV policy file. Empty uses the embedded policy.
	PolicyPath string

	// ReloadInterval controls how often PolicyPath is re-read.
	// Default: 30s
	ReloadInterval time.Duration

	// DefaultRole is used for credentials without a role claim.
	// Default: user
	DefaultRole string
}

// Enforcer authorizes room actions by role.
type Enforcer struct {
	config   Config
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads the model and the configured policy.
func NewEnforcer(cfg Config) (*Enforcer, error) {
	if cfg.ReloadInterval <= 0 {
		cfg.ReloadInterval = 30 * time.Second
	}
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = "user"
	}

	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if cfg.PolicyPath != "" {
		if _, statErr := os.Stat(cfg.PolicyPath); statErr != nil {
			return nil, fmt.Errorf("policy file: %w", statErr)
		}
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(cfg.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	return &Enforcer{config: cfg, enforcer: enforcer}, nil
}

// loadPolicy adds the p and g lines of a CSV policy.
func loadPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch parts[0] {
		case "p":
			if len(parts) != 5 {
				return fmt.Errorf("policy line %q: want sub, obj, act, eft", line)
			}
			if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3], parts[4]); err != nil {
				return fmt.Errorf("failed to add policy %v: %w", parts[1:], err)
			}
		case "g":
			if len(parts) != 3 {
				return fmt.Errorf("grouping line %q: want role, parent", line)
			}
			if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("failed to add grouping policy %v: %w", parts[1:], err)
			}
		default:
			return fmt.Errorf("policy line %q: unknown type %q", line, parts[0])
		}
	}
	return nil
}

// Authorize reports whether role may perform action in roomID. Evaluation
// errors deny.
func (e *Enforcer) Authorize(role, roomID, action string) bool {
	if role == "" {
		role = e.config.DefaultRole
	}

	allowed, err := e.enforcer.Enforce(role, roomID, action)
	if err != nil {
		logging.Error().Err(err).Str("role", role).Str("room_id", roomID).Msg("Policy evaluation failed")
		allowed = false
	}
	if !allowed {
		metrics.AuthzDenials.WithLabelValues(action).Inc()
	}
	return allowed
}

// Reload re-reads the policy file. It is a no-op for the embedded policy.
func (e *Enforcer) Reload() error {
	if e.config.PolicyPath == "" {
		return nil
	}
	if err := e.enforcer.LoadPolicy(); err != nil {
		return fmt.Errorf("reload policy: %w", err)
	}
	return nil
}

// Serve reloads a file policy on ReloadInterval until ctx is canceled. A
// failed reload keeps the previous policy.
func (e *Enforcer) Serve(ctx context.Context) error {
	if e.config.PolicyPath == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(e.config.ReloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.Reload(); err != nil {
				logging.Warn().Err(err).Str("path", e.config.PolicyPath).Msg("Keeping previous policy")
			}
		}
	}
}

// String implements fmt.Stringer for suture events.
func (e *Enforcer) String() string {
	return "authz-policy"
}
