/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler drives the periodic producer jobs. Idempotency is
// bucket-scoped: a job's last-fired marker is a civil wall-clock bucket in
// the station timezone, persisted before the job runs, so the same bucket
// cannot fire twice (even across restarts or a fall-back DST repeat) and a
// failed job waits for the next bucket instead of being hammered.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn/internal/events"
	"github.com/friendsincode/muninn/internal/models"
	"github.com/friendsincode/muninn/internal/telemetry"
)

// Job is a named periodic producer task. Run receives a context bounded
// by Timeout (or the trigger period when Timeout is zero) and must perform
// no partial publication on failure.
type Job struct {
	Name    string
	Trigger Trigger
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Service evaluates registered jobs against the civil clock.
type Service struct {
	db     *gorm.DB
	loc    *time.Location
	bus    *events.Bus
	logger zerolog.Logger
	jobs   []Job
	tick   time.Duration
	now    func() time.Time
}

// New constructs the scheduler for the given station timezone.
func New(db *gorm.DB, loc *time.Location, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		loc:    loc,
		bus:    bus,
		logger: logger,
		tick:   15 * time.Second,
		now:    time.Now,
	}
}

// Register adds a job. Not safe to call once Run has started.
func (s *Service) Register(job Job) {
	s.jobs = append(s.jobs, job)
}

// Run executes the scheduler loop until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.logger.Info().Int("jobs", len(s.jobs)).Msg("scheduler loop started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.evaluate(ctx, s.now())
		}
	}
}

// evaluate fires every job whose current civil bucket has not fired yet.
// Jobs are independent: one failing never stops the others.
func (s *Service) evaluate(ctx context.Context, now time.Time) {
	telemetry.SchedulerTicksTotal.Inc()
	local := now.In(s.loc)

	for i := range s.jobs {
		job := s.jobs[i]
		bucket := job.Trigger.Bucket(local)
		if bucket == "" {
			continue
		}

		fired, err := s.claimBucket(ctx, job.Name, bucket, now)
		if err != nil {
			s.logger.Error().Err(err).Str("job", job.Name).Msg("scheduler state error")
			continue
		}
		if !fired {
			continue
		}

		s.runJob(ctx, job, bucket)
	}
}

// claimBucket records the bucket as fired before the job runs. Returns
// false when the bucket was already claimed (by this process or a
// previous incarnation).
func (s *Service) claimBucket(ctx context.Context, name, bucket string, now time.Time) (bool, error) {
	var state models.JobState
	err := s.db.WithContext(ctx).First(&state, "name = ?", name).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		state = models.JobState{Name: name}
	case err != nil:
		return false, err
	}

	if state.LastBucket == bucket {
		return false, nil
	}

	state.LastBucket = bucket
	state.LastFiredAt = now
	if err := s.db.WithContext(ctx).Save(&state).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) runJob(ctx context.Context, job Job, bucket string) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = job.Trigger.Period()
	}

	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := job.Run(jobCtx)
	elapsed := time.Since(start)

	if err != nil {
		// Bucket stays claimed: a failed fire waits for the next bucket
		// rather than retrying inside this one.
		telemetry.SchedulerErrorsTotal.WithLabelValues(job.Name).Inc()
		s.logger.Warn().
			Err(err).
			Str("job", job.Name).
			Str("bucket", bucket).
			Dur("elapsed", elapsed).
			Msg("scheduled job failed")
		if s.bus != nil {
			s.bus.Publish(events.EventJobFailed, events.Payload{"job": job.Name, "bucket": bucket, "error": err.Error()})
		}
		return
	}

	telemetry.SchedulerFiresTotal.WithLabelValues(job.Name).Inc()
	s.logger.Info().
		Str("job", job.Name).
		Str("bucket", bucket).
		Dur("elapsed", elapsed).
		Msg("scheduled job fired")
	if s.bus != nil {
		s.bus.Publish(events.EventJobFired, events.Payload{"job": job.Name, "bucket": bucket})
	}
}

// ResetJobs clears all persisted job state. Operator tool; the next tick
// re-fires every currently due bucket.
func ResetJobs(ctx context.Context, db *gorm.DB) (int64, error) {
	result := db.WithContext(ctx).Where("1 = 1").Delete(&models.JobState{})
	return result.RowsAffected, result.Error
}
