/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package producers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn/internal/assets"
	"github.com/friendsincode/muninn/internal/events"
	"github.com/friendsincode/muninn/internal/killswitch"
	"github.com/friendsincode/muninn/internal/models"
	"github.com/friendsincode/muninn/internal/queue"
	"github.com/friendsincode/muninn/internal/telemetry"
)

// Generator produces one break segment for a slot. Implementations talk
// to the external generation service; they must honor ctx cancellation
// because the producer runs them under a hard timeout.
type Generator interface {
	Generate(ctx context.Context, slot time.Time) (*Segment, error)
}

// Segment is a generated break ready for registration.
type Segment struct {
	Title string
	Ext   string
	Body  io.ReadCloser
}

// HTTPGenerator requests segments from the break generation service.
type HTTPGenerator struct {
	url    string
	client *http.Client
}

// NewHTTPGenerator creates a generator against the given endpoint.
func NewHTTPGenerator(url string) *HTTPGenerator {
	return &HTTPGenerator{url: url, client: &http.Client{}}
}

// Generate fetches one segment. The response body is the audio; the
// content type picks the extension.
func (g *HTTPGenerator) Generate(ctx context.Context, slot time.Time) (*Segment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build generator request: %w", err)
	}
	req.Header.Set("Accept", "audio/*")
	q := req.URL.Query()
	q.Set("slot", slot.UTC().Format(time.RFC3339))
	req.URL.RawQuery = q.Encode()

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call break generator: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("break generator returned %s", resp.Status)
	}

	ext := ".mp3"
	switch resp.Header.Get("Content-Type") {
	case "audio/ogg":
		ext = ".ogg"
	case "audio/flac":
		ext = ".flac"
	case "audio/wav", "audio/x-wav":
		ext = ".wav"
	}

	return &Segment{
		Title: "break " + slot.Format("2006-01-02 15:04"),
		Ext:   ext,
		Body:  resp.Body,
	}, nil
}

// Breaks is the hourly break generation producer.
type Breaks struct {
	generator Generator
	store     *assets.Store
	queues    *queue.Manager
	ksw       *killswitch.Switch
	planner   *Planner
	timeout   time.Duration
	loc       *time.Location
	bus       *events.Bus
	logger    zerolog.Logger
	now       func() time.Time
}

// NewBreaks creates the break producer. planner may be nil, in which case
// every hour gets a break.
func NewBreaks(gen Generator, store *assets.Store, queues *queue.Manager, ksw *killswitch.Switch, planner *Planner, timeout time.Duration, loc *time.Location, bus *events.Bus, logger zerolog.Logger) *Breaks {
	return &Breaks{
		generator: gen,
		store:     store,
		queues:    queues,
		ksw:       ksw,
		planner:   planner,
		timeout:   timeout,
		loc:       loc,
		bus:       bus,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock fixes the producer's clock, for tests.
func (b *Breaks) WithClock(now func() time.Time) *Breaks {
	b.now = now
	return b
}

// Run is the scheduled job body. The kill switch is snapshotted exactly
// once at entry; flipping it mid-generation does not abort the run. The
// generation timestamp travels with the queue entry so the freshness
// guard can age it at selection time.
func (b *Breaks) Run(ctx context.Context) error {
	if b.ksw.Snapshot() {
		telemetry.ProducerSkipsTotal.WithLabelValues("killswitch").Inc()
		b.logger.Info().Msg("break generation skipped: kill switch engaged")
		return nil
	}

	slot := b.now().In(b.loc)
	if b.planner != nil {
		plan, err := b.planner.Load(slot)
		if err != nil {
			return err
		}
		if plan != nil && !plan.HasHour(slot.Hour()) {
			telemetry.ProducerSkipsTotal.WithLabelValues("unplanned").Inc()
			return nil
		}
	}

	genCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	generatedAt := b.now().UTC()
	segment, err := b.generator.Generate(genCtx, slot)
	if err != nil {
		return fmt.Errorf("generate break: %w", err)
	}
	defer segment.Body.Close()

	asset, err := b.store.Register(genCtx, models.AssetBreak, segment.Title, segment.Ext, segment.Body)
	if err != nil {
		return fmt.Errorf("register break: %w", err)
	}

	if _, err := b.queues.Push(models.QueueBreaks, asset.ID, generatedAt); err != nil {
		return fmt.Errorf("enqueue break: %w", err)
	}

	telemetry.BreaksGeneratedTotal.Inc()
	b.logger.Info().
		Str("asset", asset.ID).
		Time("generated_at", generatedAt).
		Msg("break published")
	if b.bus != nil {
		b.bus.Publish(events.EventBreakPublished, events.Payload{
			"asset":        asset.ID,
			"generated_at": generatedAt,
		})
	}
	return nil
}
