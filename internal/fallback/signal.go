/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package fallback

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn/internal/handoff"
)

// Signal is the operator's force-break flag. It has exactly two
// interesting transitions: Set (operator action) and Consume (the chain,
// when a break actually starts playing). The flag is a file so it
// survives restarts; consumption renames it away first, which makes the
// consume side atomic even with concurrent consumers.
type Signal struct {
	path   string
	logger zerolog.Logger
}

// NewSignal creates a force-break signal backed by the flag file at path.
func NewSignal(path string, logger zerolog.Logger) *Signal {
	return &Signal{path: path, logger: logger}
}

// Set raises the signal. Setting an already-set signal is a no-op.
// The signal never interrupts a playing track: break entries already
// outrank music, so the request is answered by the next queued break at
// the next boundary, and the flag is consumed when that break starts.
// With an empty break queue the request stays pending until a break is
// published.
func (s *Signal) Set() error {
	body := fmt.Sprintf("requested %s\n", time.Now().UTC().Format(time.RFC3339))
	dir, name := filepath.Split(s.path)
	if dir == "" {
		dir = "."
	}
	if _, err := handoff.Publish(dir, name, strings.NewReader(body)); err != nil {
		return fmt.Errorf("set force-break signal: %w", err)
	}
	s.logger.Info().Msg("force break requested")
	return nil
}

// IsSet reports whether the signal is raised.
func (s *Signal) IsSet() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Consume lowers the signal, returning true only for the caller that
// actually consumed it. The rename-then-remove makes the consumption
// exactly-once: a second consumer finds nothing to rename.
func (s *Signal) Consume() bool {
	consumed := s.path + ".consumed"
	if err := os.Rename(s.path, consumed); err != nil {
		return false
	}
	os.Remove(consumed)
	s.logger.Info().Msg("force break signal consumed")
	return true
}
