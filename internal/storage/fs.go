/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn/internal/handoff"
)

// Filesystem archives objects under a local root directory.
type Filesystem struct {
	root   string
	logger zerolog.Logger
}

// NewFilesystem creates a filesystem archive rooted at root.
func NewFilesystem(root string, logger zerolog.Logger) (*Filesystem, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create archive root: %w", err)
	}
	return &Filesystem{root: root, logger: logger}, nil
}

// Store writes the object through the atomic hand-off so a crash cannot
// leave a partial archive file under the canonical key.
func (f *Filesystem) Store(ctx context.Context, key string, body io.Reader) error {
	dir := filepath.Join(f.root, filepath.Dir(key))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	if _, err := handoff.Publish(dir, filepath.Base(key), body); err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}

	f.logger.Debug().Str("key", key).Msg("archived to filesystem")
	return nil
}

// Delete removes the archived object.
func (f *Filesystem) Delete(ctx context.Context, key string) error {
	if err := os.Remove(filepath.Join(f.root, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete archived %s: %w", key, err)
	}
	return nil
}
