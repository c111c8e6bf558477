/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package killswitch holds the process-wide generation kill switch. The
// switch is a flag file: present means engaged. Generation jobs take one
// immutable snapshot at their own start and exit as a no-op when engaged;
// playout never reads it.
package killswitch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn/internal/handoff"
)

// Switch is the externally toggled generation kill switch.
type Switch struct {
	path   string
	logger zerolog.Logger
}

// New creates a switch backed by the flag file at path.
func New(path string, logger zerolog.Logger) *Switch {
	return &Switch{path: path, logger: logger}
}

// Snapshot reads the current state once. Jobs call this at start and hold
// the copy for their whole run; the flag changing mid-run does not abort
// work already under way.
func (s *Switch) Snapshot() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Engage creates the flag file atomically.
func (s *Switch) Engage(reason string) error {
	body := fmt.Sprintf("engaged %s\n%s\n", time.Now().UTC().Format(time.RFC3339), reason)
	dir, name := filepath.Split(s.path)
	if dir == "" {
		dir = "."
	}
	if _, err := handoff.Publish(dir, name, strings.NewReader(body)); err != nil {
		return fmt.Errorf("engage kill switch: %w", err)
	}
	s.logger.Warn().Str("reason", reason).Msg("generation kill switch engaged")
	return nil
}

// Disengage removes the flag file. Removing an absent flag is a no-op.
func (s *Switch) Disengage() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("disengage kill switch: %w", err)
	}
	s.logger.Info().Msg("generation kill switch disengaged")
	return nil
}
