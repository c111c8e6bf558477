/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"fmt"
	"time"
)

// TriggerKind enumerates the supported civil-time trigger shapes.
type TriggerKind string

const (
	TriggerEveryMinutes TriggerKind = "every_minutes"
	TriggerHourlyAt     TriggerKind = "hourly_at"
	TriggerDailyAt      TriggerKind = "daily_at"
)

// Trigger describes when a job is due, in civil wall-clock terms. A
// trigger maps an instant to a bucket key; the same key firing twice is
// prevented by the persisted job state, which is what makes fall-back
// transitions (a repeated civil hour) safe. Spring-forward transitions
// simply never produce the skipped bucket.
type Trigger struct {
	Kind         TriggerKind
	EveryMinutes int
	Minute       int // minute of hour (hourly) or of day start hour (daily)
	Hour         int // daily only
}

// EveryMinutes fires once per n-minute slot of the civil hour.
func EveryMinutes(n int) Trigger {
	return Trigger{Kind: TriggerEveryMinutes, EveryMinutes: n}
}

// HourlyAt fires once per civil hour, from the given minute onward.
func HourlyAt(minute int) Trigger {
	return Trigger{Kind: TriggerHourlyAt, Minute: minute}
}

// DailyAt fires once per civil day, from the given time onward.
func DailyAt(hour, minute int) Trigger {
	return Trigger{Kind: TriggerDailyAt, Hour: hour, Minute: minute}
}

// Bucket returns the civil bucket key due at local time t, or "" when the
// trigger is not yet due within the current period. Keys are derived from
// the wall clock, never from elapsed seconds.
func (tr Trigger) Bucket(t time.Time) string {
	switch tr.Kind {
	case TriggerEveryMinutes:
		n := tr.EveryMinutes
		if n <= 0 || n > 60 {
			return ""
		}
		slot := (t.Minute() / n) * n
		return fmt.Sprintf("%s %02d", t.Format("2006-01-02 15"), slot)
	case TriggerHourlyAt:
		if t.Minute() < tr.Minute {
			return ""
		}
		return t.Format("2006-01-02 15")
	case TriggerDailyAt:
		if t.Hour() < tr.Hour || (t.Hour() == tr.Hour && t.Minute() < tr.Minute) {
			return ""
		}
		return t.Format("2006-01-02")
	default:
		return ""
	}
}

// Period returns the trigger's nominal cadence, used to cap job runtimes
// so a generation job cannot outlive its next scheduled invocation.
func (tr Trigger) Period() time.Duration {
	switch tr.Kind {
	case TriggerEveryMinutes:
		return time.Duration(tr.EveryMinutes) * time.Minute
	case TriggerHourlyAt:
		return time.Hour
	case TriggerDailyAt:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}
