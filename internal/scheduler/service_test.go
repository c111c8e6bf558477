/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/muninn/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.JobState{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, loc *time.Location) *Service {
	t.Helper()
	return New(newTestDB(t), loc, nil, zerolog.Nop())
}

func TestSameBucketFiresAtMostOnce(t *testing.T) {
	svc := newTestService(t, time.UTC)

	fires := 0
	svc.Register(Job{
		Name:    "refill",
		Trigger: EveryMinutes(15),
		Run: func(ctx context.Context) error {
			fires++
			return nil
		},
	})

	base := time.Date(2026, 5, 10, 10, 0, 0, 0, time.UTC)
	// Several ticks inside the same 15 minute slot.
	for _, offset := range []time.Duration{0, 30 * time.Second, 5 * time.Minute, 14 * time.Minute} {
		svc.evaluate(context.Background(), base.Add(offset))
	}
	if fires != 1 {
		t.Errorf("fires = %d, want 1 within one bucket", fires)
	}

	// Next slot fires again.
	svc.evaluate(context.Background(), base.Add(16*time.Minute))
	if fires != 2 {
		t.Errorf("fires = %d, want 2 after bucket rollover", fires)
	}
}

func TestFailedJobWaitsForNextBucket(t *testing.T) {
	svc := newTestService(t, time.UTC)

	attempts := 0
	svc.Register(Job{
		Name:    "breaks",
		Trigger: HourlyAt(50),
		Run: func(ctx context.Context) error {
			attempts++
			return errors.New("generator down")
		},
	})

	at := time.Date(2026, 5, 10, 10, 50, 0, 0, time.UTC)
	svc.evaluate(context.Background(), at)
	svc.evaluate(context.Background(), at.Add(time.Minute))
	svc.evaluate(context.Background(), at.Add(5*time.Minute))
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1: failed fire must not retry within the bucket", attempts)
	}

	svc.evaluate(context.Background(), at.Add(time.Hour))
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2 in the next hour bucket", attempts)
	}
}

func TestSpringForwardSkipsMissingHour(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	svc := newTestService(t, loc)

	var buckets []string
	svc.Register(Job{
		Name:    "hourly",
		Trigger: HourlyAt(30),
		Run: func(ctx context.Context) error {
			var state models.JobState
			if err := svc.db.First(&state, "name = ?", "hourly").Error; err != nil {
				return err
			}
			buckets = append(buckets, state.LastBucket)
			return nil
		},
	})

	// 2026-03-08: 02:00 EST jumps to 03:00 EDT; the 02:xx civil hour
	// never exists.
	ticks := []time.Time{
		time.Date(2026, 3, 8, 6, 35, 0, 0, time.UTC),  // 01:35 EST
		time.Date(2026, 3, 8, 7, 5, 0, 0, time.UTC),   // 03:05 EDT, before minute 30
		time.Date(2026, 3, 8, 7, 35, 0, 0, time.UTC),  // 03:35 EDT
		time.Date(2026, 3, 8, 8, 35, 0, 0, time.UTC),  // 04:35 EDT
	}
	for _, tick := range ticks {
		svc.evaluate(context.Background(), tick)
	}

	want := []string{"2026-03-08 01", "2026-03-08 03", "2026-03-08 04"}
	if len(buckets) != len(want) {
		t.Fatalf("fired buckets %v, want %v", buckets, want)
	}
	for i := range want {
		if buckets[i] != want[i] {
			t.Errorf("bucket[%d] = %s, want %s", i, buckets[i], want[i])
		}
	}
}

func TestFallBackRepeatedHourFiresOnce(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	svc := newTestService(t, loc)

	fires := 0
	svc.Register(Job{
		Name:    "hourly",
		Trigger: HourlyAt(30),
		Run: func(ctx context.Context) error {
			fires++
			return nil
		},
	})

	// 2026-11-01: 02:00 EDT falls back to 01:00 EST; the 01:xx civil
	// hour occurs twice.
	svc.evaluate(context.Background(), time.Date(2026, 11, 1, 5, 35, 0, 0, time.UTC)) // 01:35 EDT
	svc.evaluate(context.Background(), time.Date(2026, 11, 1, 6, 35, 0, 0, time.UTC)) // 01:35 EST
	if fires != 1 {
		t.Errorf("fires = %d, want 1 across the repeated civil hour", fires)
	}

	svc.evaluate(context.Background(), time.Date(2026, 11, 1, 7, 35, 0, 0, time.UTC)) // 02:35 EST
	if fires != 2 {
		t.Errorf("fires = %d, want 2 once the clock moves on", fires)
	}
}

func TestBucketPersistsAcrossRestart(t *testing.T) {
	db := newTestDB(t)

	fires := 0
	job := Job{
		Name:    "daily",
		Trigger: DailyAt(4, 0),
		Run: func(ctx context.Context) error {
			fires++
			return nil
		},
	}

	first := New(db, time.UTC, nil, zerolog.Nop())
	first.Register(job)
	at := time.Date(2026, 5, 10, 4, 1, 0, 0, time.UTC)
	first.evaluate(context.Background(), at)

	// Same DB, fresh service: simulates a process restart within the
	// same civil day.
	second := New(db, time.UTC, nil, zerolog.Nop())
	second.Register(job)
	second.evaluate(context.Background(), at.Add(2*time.Hour))

	if fires != 1 {
		t.Errorf("fires = %d, want 1: restart must not double-fire a bucket", fires)
	}
}

func TestTriggerBuckets(t *testing.T) {
	at := time.Date(2026, 7, 4, 9, 47, 12, 0, time.UTC)

	tests := []struct {
		name    string
		trigger Trigger
		want    string
	}{
		{"every 15", EveryMinutes(15), "2026-07-04 09 45"},
		{"hourly at 50 not due", HourlyAt(50), ""},
		{"hourly at 30 due", HourlyAt(30), "2026-07-04 09"},
		{"daily at 4 due", DailyAt(4, 0), "2026-07-04"},
		{"daily at 23 not due", DailyAt(23, 0), ""},
		{"invalid every", EveryMinutes(0), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.trigger.Bucket(at); got != tt.want {
				t.Errorf("Bucket = %q, want %q", got, tt.want)
			}
		})
	}
}
