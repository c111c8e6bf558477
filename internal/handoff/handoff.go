/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package handoff implements the atomic publication primitive shared by
// every producer: write to a temporary path on the same filesystem, then
// rename into the canonical location in one step. A reader polling the
// canonical path therefore never observes a partially written file; a
// producer that dies mid-write leaves only temp garbage, never a partial
// publication.
package handoff

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// tempPrefix marks in-flight temp files so sweepers can identify them.
const tempPrefix = ".handoff-"

// Publish streams r into dir/name atomically. The canonical path either
// does not exist or holds the complete contents, never anything between.
func Publish(dir, name string, r io.Reader) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create target dir: %w", err)
	}

	// Temp file must live in the target directory: rename is only atomic
	// within one filesystem.
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		cleanup()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	dst := filepath.Join(dir, name)
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("publish rename: %w", err)
	}
	return dst, nil
}

// PublishFile copies src into dir/name atomically. The source file is left
// untouched; movers that want rename-as-ack semantics should use Move.
func PublishFile(dir, name, src string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer f.Close()
	return Publish(dir, name, f)
}

// Move renames src into dir/name. When both live on the same filesystem
// this is atomic and doubles as an at-most-once acknowledgment: a retry
// cannot re-move a file that no longer exists at src.
func Move(dir, name, src string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create target dir: %w", err)
	}
	dst := filepath.Join(dir, name)
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("move: %w", err)
	}
	return dst, nil
}

// SweepTemp removes abandoned temp files older than the given age from
// dir. Called by housekeeping; publication itself never needs it.
func SweepTemp(dir string, olderThan func(os.FileInfo) bool) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || len(entry.Name()) < len(tempPrefix) || entry.Name()[:len(tempPrefix)] != tempPrefix {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if olderThan != nil && !olderThan(info) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
