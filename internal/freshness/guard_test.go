/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package freshness

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn/internal/queue"
)

func TestFreshBoundaryIsInclusiveReject(t *testing.T) {
	threshold := 65 * time.Minute
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	guard := NewGuard(threshold, zerolog.Nop()).WithClock(func() time.Time { return now })

	tests := []struct {
		name  string
		age   time.Duration
		fresh bool
	}{
		{"brand new", 0, true},
		{"one minute old", time.Minute, true},
		{"just under threshold", threshold - time.Second, true},
		{"exactly threshold", threshold, false},
		{"just over threshold", threshold + time.Second, false},
		{"hours stale", 5 * time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &queue.Entry{AssetID: "seg", GeneratedAt: now.Add(-tt.age)}
			if got := guard.Fresh(entry); got != tt.fresh {
				t.Errorf("Fresh(age=%v) = %v, want %v", tt.age, got, tt.fresh)
			}
		})
	}
}

func TestFirstFreshSkipsStaleHead(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	guard := NewGuard(time.Hour, zerolog.Nop()).WithClock(func() time.Time { return now })

	entries := []queue.Entry{
		{AssetID: "old", GeneratedAt: now.Add(-2 * time.Hour)},
		{AssetID: "new", GeneratedAt: now.Add(-10 * time.Minute)},
	}

	got := guard.FirstFresh(entries)
	if got == nil || got.AssetID != "new" {
		t.Errorf("FirstFresh = %+v, want the new entry", got)
	}
}

func TestFirstFreshAllStale(t *testing.T) {
	now := time.Now()
	guard := NewGuard(time.Minute, zerolog.Nop()).WithClock(func() time.Time { return now })

	entries := []queue.Entry{
		{AssetID: "a", GeneratedAt: now.Add(-time.Hour)},
		{AssetID: "b", GeneratedAt: now.Add(-2 * time.Hour)},
	}
	if got := guard.FirstFresh(entries); got != nil {
		t.Errorf("FirstFresh = %+v, want nil", got)
	}
}

func TestFreshNilEntry(t *testing.T) {
	guard := NewGuard(time.Hour, zerolog.Nop())
	if guard.Fresh(nil) {
		t.Error("Fresh(nil) = true, want false")
	}
}
