/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy holds the operator-tunable playout policy. It ships with safe
// defaults and can be overridden from a YAML document so station staff can
// adjust behavior without touching the deployment environment.
type Policy struct {
	// Break segments older than this are rejected by the freshness guard.
	// The boundary is inclusive: age == threshold is stale.
	StalenessMinutes int `yaml:"staleness_minutes"`

	// Anti-repetition lookback.
	SelectorWindowHours int `yaml:"selector_window_hours"`
	SelectorMaxLookback int `yaml:"selector_max_lookback"`

	// Music queue refill.
	RefillDepth        int `yaml:"refill_depth"`
	RefillEveryMinutes int `yaml:"refill_every_minutes"`

	// Break generation cadence: at this minute of every hour.
	BreakMinuteOfHour int `yaml:"break_minute_of_hour"`

	// Drop-in ingestion.
	DropinSettleSeconds int      `yaml:"dropin_settle_seconds"`
	DropinExtensions    []string `yaml:"dropin_extensions"`

	// Housekeeping.
	HousekeepingEveryMinutes int `yaml:"housekeeping_every_minutes"`
	BreakRetentionHours      int `yaml:"break_retention_hours"`
	EscalatedRetentionHours  int `yaml:"escalated_retention_hours"`
	LogRetentionHours        int `yaml:"log_retention_hours"`
	LedgerRetentionDays      int `yaml:"ledger_retention_days"`
	DiskHighWaterPercent     int `yaml:"disk_high_water_percent"`
}

// DefaultPolicy returns the built-in policy values.
func DefaultPolicy() Policy {
	return Policy{
		StalenessMinutes:         65,
		SelectorWindowHours:      24,
		SelectorMaxLookback:      500,
		RefillDepth:              5,
		RefillEveryMinutes:       15,
		BreakMinuteOfHour:        50,
		DropinSettleSeconds:      5,
		DropinExtensions:         []string{".mp3", ".flac", ".ogg", ".wav", ".m4a"},
		HousekeepingEveryMinutes: 30,
		BreakRetentionHours:      72,
		EscalatedRetentionHours:  12,
		LogRetentionHours:        48,
		LedgerRetentionDays:      30,
		DiskHighWaterPercent:     90,
	}
}

// LoadPolicy reads the YAML policy file at path, overlaying it on the
// defaults. An empty path yields the defaults unchanged.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return Policy{}, fmt.Errorf("parse policy file: %w", err)
	}
	return policy, policy.validate()
}

func (p Policy) validate() error {
	if p.StalenessMinutes <= 0 {
		return fmt.Errorf("staleness_minutes must be positive")
	}
	if p.BreakMinuteOfHour < 0 || p.BreakMinuteOfHour > 59 {
		return fmt.Errorf("break_minute_of_hour must be within 0..59")
	}
	if p.RefillEveryMinutes <= 0 || p.HousekeepingEveryMinutes <= 0 {
		return fmt.Errorf("refill and housekeeping cadences must be positive")
	}
	if p.DiskHighWaterPercent <= 0 || p.DiskHighWaterPercent > 100 {
		return fmt.Errorf("disk_high_water_percent must be within 1..100")
	}
	if p.EscalatedRetentionHours > p.BreakRetentionHours {
		return fmt.Errorf("escalated retention must not exceed normal retention")
	}
	return nil
}

// Staleness returns the freshness threshold as a duration.
func (p Policy) Staleness() time.Duration {
	return time.Duration(p.StalenessMinutes) * time.Minute
}

// SelectorWindow returns the anti-repetition lookback as a duration.
func (p Policy) SelectorWindow() time.Duration {
	return time.Duration(p.SelectorWindowHours) * time.Hour
}

// DropinSettle returns the ingest settle interval as a duration.
func (p Policy) DropinSettle() time.Duration {
	return time.Duration(p.DropinSettleSeconds) * time.Second
}

// BreakRetention returns the break retention window, shortened when
// escalated is set by the disk high-water check.
func (p Policy) BreakRetention(escalated bool) time.Duration {
	hours := p.BreakRetentionHours
	if escalated {
		hours = p.EscalatedRetentionHours
	}
	return time.Duration(hours) * time.Hour
}

// LogRetention returns the structured log retention window.
func (p Policy) LogRetention() time.Duration {
	return time.Duration(p.LogRetentionHours) * time.Hour
}

// LedgerRetention returns the play history retention window. It is floored
// at the selector lookback so pruning can never starve anti-repetition.
func (p Policy) LedgerRetention() time.Duration {
	retention := time.Duration(p.LedgerRetentionDays) * 24 * time.Hour
	if retention < p.SelectorWindow() {
		return p.SelectorWindow()
	}
	return retention
}
