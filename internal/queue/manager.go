/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package queue maintains the three playout queues as spool directories.
// Each entry is a small JSON document published through the atomic
// hand-off, so a scan of the directory only ever sees complete entries.
// FIFO order is encoded in the file name: a zero-padded enqueue timestamp
// sorts lexicographically.
package queue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn/internal/handoff"
	"github.com/friendsincode/muninn/internal/models"
	"github.com/friendsincode/muninn/internal/telemetry"
)

// ErrNotQueued indicates no entry for the asset exists in the queue.
var ErrNotQueued = errors.New("asset not queued")

// Entry references an asset waiting to be played.
type Entry struct {
	Queue       models.QueueName `json:"queue"`
	AssetID     string           `json:"asset_id"`
	EnqueuedAt  time.Time        `json:"enqueued_at"`
	GeneratedAt time.Time        `json:"generated_at"`
	Path        string           `json:"-"`
}

// Manager owns the spool directories for the three queues. Entries belong
// to the manager from enqueue until removal: PopOnPlay when playback
// starts, Discard when an entry can never play.
type Manager struct {
	root   string
	logger zerolog.Logger
}

// NewManager creates the spool layout under root.
func NewManager(root string, logger zerolog.Logger) (*Manager, error) {
	for _, q := range []models.QueueName{models.QueueOverride, models.QueueBreaks, models.QueueMusic} {
		if err := os.MkdirAll(filepath.Join(root, string(q)), 0o755); err != nil {
			return nil, fmt.Errorf("create spool dir %s: %w", q, err)
		}
	}
	return &Manager{root: root, logger: logger}, nil
}

func (m *Manager) dir(q models.QueueName) string {
	return filepath.Join(m.root, string(q))
}

// Push enqueues a reference to an asset. generatedAt records when the
// underlying content was produced; the freshness guard reads it at
// selection time.
func (m *Manager) Push(q models.QueueName, assetID string, generatedAt time.Time) (*Entry, error) {
	if !q.Valid() {
		return nil, fmt.Errorf("unknown queue %q", q)
	}

	now := time.Now().UTC()
	entry := Entry{
		Queue:       q,
		AssetID:     assetID,
		EnqueuedAt:  now,
		GeneratedAt: generatedAt,
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal entry: %w", err)
	}

	short := assetID
	if len(short) > 12 {
		short = short[:12]
	}
	name := fmt.Sprintf("%020d-%s.json", now.UnixNano(), short)

	path, err := handoff.Publish(m.dir(q), name, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("publish entry: %w", err)
	}
	entry.Path = path

	telemetry.QueuePushesTotal.WithLabelValues(string(q)).Inc()
	telemetry.QueueDepth.WithLabelValues(string(q)).Set(float64(m.Depth(q)))

	m.logger.Debug().
		Str("queue", string(q)).
		Str("asset", assetID).
		Msg("entry enqueued")
	return &entry, nil
}

// Entries returns the queue contents in FIFO order.
func (m *Manager) Entries(q models.QueueName) ([]Entry, error) {
	dirEntries, err := os.ReadDir(m.dir(q))
	if err != nil {
		return nil, fmt.Errorf("read spool dir: %w", err)
	}

	names := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		names = append(names, de.Name())
	}
	sort.Strings(names)

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		path := filepath.Join(m.dir(q), name)
		raw, err := os.ReadFile(path)
		if err != nil {
			// Popped between scan and read; FIFO order is unaffected.
			continue
		}
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			m.logger.Warn().Str("path", path).Err(err).Msg("skipping malformed queue entry")
			continue
		}
		entry.Path = path
		entries = append(entries, entry)
	}
	return entries, nil
}

// Peek returns the oldest entry, or nil when the queue is empty.
func (m *Manager) Peek(q models.QueueName) (*Entry, error) {
	entries, err := m.Entries(q)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// Depth reports the number of not-yet-played entries.
func (m *Manager) Depth(q models.QueueName) int {
	entries, err := m.Entries(q)
	if err != nil {
		return 0
	}
	return len(entries)
}

// PopOnPlay removes the oldest entry for assetID. It is driven by the
// external playout engine's track-start notification: an entry leaves the
// queue the instant its playback begins, not before.
func (m *Manager) PopOnPlay(q models.QueueName, assetID string) (*Entry, error) {
	entries, err := m.Entries(q)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].AssetID != assetID {
			continue
		}
		if err := os.Remove(entries[i].Path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove entry: %w", err)
		}
		telemetry.QueueDepth.WithLabelValues(string(q)).Set(float64(m.Depth(q)))
		m.logger.Debug().
			Str("queue", string(q)).
			Str("asset", assetID).
			Msg("entry consumed on play")
		return &entries[i], nil
	}
	return nil, ErrNotQueued
}

// Discard removes an entry that will never play: its asset was pruned,
// or its content outlived retention while the chain kept skipping it.
// Normal consumption stays with PopOnPlay.
func (m *Manager) Discard(entry *Entry) error {
	if err := os.Remove(entry.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove entry: %w", err)
	}
	telemetry.QueueDepth.WithLabelValues(string(entry.Queue)).Set(float64(m.Depth(entry.Queue)))
	m.logger.Info().
		Str("queue", string(entry.Queue)).
		Str("asset", entry.AssetID).
		Msg("entry discarded")
	return nil
}
