/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisSink publishes envelopes on per-type Redis channels under
// muninn:events:<type>.
type RedisSink struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisSink connects to Redis and verifies the connection with a ping.
func NewRedisSink(addr, password string, db int, logger zerolog.Logger) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	logger.Info().Str("addr", addr).Msg("event mirror connected to redis")
	return &RedisSink{client: client, logger: logger}, nil
}

// Publish sends the envelope on its channel.
func (r *RedisSink) Publish(ctx context.Context, env Envelope) error {
	data, err := marshalEnvelope(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	channel := "muninn:events:" + string(env.Type)
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

// Close closes the client.
func (r *RedisSink) Close() error {
	return r.client.Close()
}
