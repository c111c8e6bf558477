/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn/internal/events"
)

type captureSink struct {
	mu   sync.Mutex
	seen []Envelope
}

func (c *captureSink) Publish(ctx context.Context, env Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, env)
	return nil
}

func (c *captureSink) Close() error { return nil }

func (c *captureSink) envelopes() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Envelope(nil), c.seen...)
}

func TestMirrorForwardsSelectedEvents(t *testing.T) {
	bus := events.NewBus()
	sink := &captureSink{}
	mirror := NewMirror(bus, "station-1", []Sink{sink}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mirror.Run(ctx)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)

	bus.Publish(events.EventNowPlaying, events.Payload{"asset": "abc"})
	bus.Publish(events.EventDiskPressure, events.Payload{"used_percent": 95.0})
	// Not in the mirrored set: must not cross the boundary.
	bus.Publish(events.EventJobFired, events.Payload{"job": "refill"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(sink.envelopes()) < 2 {
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done

	got := sink.envelopes()
	if len(got) != 2 {
		t.Fatalf("mirrored %d events, want 2", len(got))
	}
	types := map[events.EventType]bool{}
	for _, env := range got {
		types[env.Type] = true
		if env.Node != "station-1" {
			t.Errorf("node = %q, want station-1", env.Node)
		}
		if env.Timestamp.IsZero() {
			t.Error("envelope timestamp not set")
		}
	}
	if !types[events.EventNowPlaying] || !types[events.EventDiskPressure] {
		t.Errorf("mirrored types = %v", types)
	}
}

func TestMirrorWithoutSinksReturnsImmediately(t *testing.T) {
	bus := events.NewBus()
	mirror := NewMirror(bus, "station-1", nil, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		mirror.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sinkless mirror should not block")
	}
}
