/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSSink publishes envelopes to per-type NATS subjects under
// muninn.events.<type>.
type NATSSink struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

// NewNATSSink connects to the NATS server at url.
func NewNATSSink(url string, logger zerolog.Logger) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.Name("muninn-event-mirror"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	logger.Info().Str("url", url).Msg("event mirror connected to nats")
	return &NATSSink{conn: conn, logger: logger}, nil
}

// Publish sends the envelope to its subject.
func (n *NATSSink) Publish(ctx context.Context, env Envelope) error {
	data, err := marshalEnvelope(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	subject := "muninn.events." + string(env.Type)
	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the connection.
func (n *NATSSink) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return err
	}
	return nil
}
