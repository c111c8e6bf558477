/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package producers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn/internal/handoff"
)

// Slot is one planned break within a day.
type Slot struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// Plan is the break schedule for one civil day.
type Plan struct {
	Date  string `json:"date"` // 2006-01-02 in the station timezone
	Slots []Slot `json:"slots"`
}

// HasHour reports whether the plan schedules a break in the given hour.
func (p *Plan) HasHour(hour int) bool {
	for _, slot := range p.Slots {
		if slot.Hour == hour {
			return true
		}
	}
	return false
}

// Planner precomputes the next day's break slots and publishes them as a
// plan document. The break producer consults the day's plan and, when no
// plan exists, falls back to one break per hour.
type Planner struct {
	dir    string
	loc    *time.Location
	minute int
	logger zerolog.Logger
}

// NewPlanner creates a planner writing plan documents into dir.
func NewPlanner(dir string, loc *time.Location, minute int, logger zerolog.Logger) (*Planner, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plan dir: %w", err)
	}
	return &Planner{dir: dir, loc: loc, minute: minute, logger: logger}, nil
}

// Run is the scheduled job body: it writes tomorrow's plan, and today's
// if the process started after the previous run would have produced it.
func (p *Planner) Run(ctx context.Context) error {
	now := time.Now().In(p.loc)
	for _, day := range []time.Time{now, now.AddDate(0, 0, 1)} {
		if err := p.publish(day); err != nil {
			return err
		}
	}
	return nil
}

// Load returns the plan for the given day, or nil when none was written.
func (p *Planner) Load(day time.Time) (*Plan, error) {
	raw, err := os.ReadFile(p.path(day))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	var plan Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	return &plan, nil
}

func (p *Planner) path(day time.Time) string {
	return filepath.Join(p.dir, "plan-"+day.In(p.loc).Format("2006-01-02")+".json")
}

func (p *Planner) publish(day time.Time) error {
	date := day.In(p.loc).Format("2006-01-02")
	if _, err := os.Stat(p.path(day)); err == nil {
		// Already planned; plans are immutable once published.
		return nil
	}

	plan := Plan{Date: date, Slots: make([]Slot, 0, 24)}
	for hour := 0; hour < 24; hour++ {
		plan.Slots = append(plan.Slots, Slot{Hour: hour, Minute: p.minute})
	}

	raw, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	if _, err := handoff.Publish(p.dir, filepath.Base(p.path(day)), bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("publish plan: %w", err)
	}

	p.logger.Info().Str("date", date).Int("slots", len(plan.Slots)).Msg("break plan published")
	return nil
}
