/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus mirrors in-process events to external brokers so
// dashboards and sibling processes can follow the station without
// touching its database. Mirroring is fire-and-forget: a dead broker
// never blocks the components publishing events.
package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn/internal/events"
)

// Envelope is the wire form of a mirrored event.
type Envelope struct {
	Type      events.EventType `json:"type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	Node      string           `json:"node"`
}

// Sink delivers envelopes to one external broker.
type Sink interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// MirroredTypes is the set of events worth exporting. Internal chatter
// (scheduler ticks and the like) stays in-process.
var MirroredTypes = []events.EventType{
	events.EventNowPlaying,
	events.EventChainTransition,
	events.EventBreakPublished,
	events.EventBreakStale,
	events.EventDropinIngested,
	events.EventDropinRejected,
	events.EventDiskPressure,
	events.EventKillSwitch,
}

// Mirror fans selected bus events out to the configured sinks.
type Mirror struct {
	bus    *events.Bus
	sinks  []Sink
	node   string
	logger zerolog.Logger
	wg     sync.WaitGroup
}

// NewMirror creates a mirror over the given sinks.
func NewMirror(bus *events.Bus, node string, sinks []Sink, logger zerolog.Logger) *Mirror {
	return &Mirror{bus: bus, sinks: sinks, node: node, logger: logger}
}

// Run subscribes to each mirrored type and forwards until the context is
// cancelled. Sink errors are logged and dropped.
func (m *Mirror) Run(ctx context.Context) {
	if len(m.sinks) == 0 {
		return
	}

	for _, eventType := range MirroredTypes {
		sub := m.bus.Subscribe(eventType)
		m.wg.Add(1)
		go func(eventType events.EventType, sub events.Subscriber) {
			defer m.wg.Done()
			for {
				select {
				case <-ctx.Done():
					m.bus.Unsubscribe(eventType, sub)
					return
				case payload, ok := <-sub:
					if !ok {
						return
					}
					m.forward(ctx, eventType, payload)
				}
			}
		}(eventType, sub)
	}

	<-ctx.Done()
	m.wg.Wait()
	for _, sink := range m.sinks {
		sink.Close()
	}
}

func (m *Mirror) forward(ctx context.Context, eventType events.EventType, payload events.Payload) {
	env := Envelope{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		Node:      m.node,
	}
	for _, sink := range m.sinks {
		if err := sink.Publish(ctx, env); err != nil {
			m.logger.Warn().
				Err(err).
				Str("event", string(eventType)).
				Msg("event mirror publish failed")
		}
	}
}

func marshalEnvelope(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}
