/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package handoff

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPublishWritesCompleteFile(t *testing.T) {
	dir := t.TempDir()
	content := strings.Repeat("payload", 1024)

	dst, err := Publish(dir, "segment.mp3", strings.NewReader(content))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read published file: %v", err)
	}
	if string(got) != content {
		t.Errorf("published content mismatch: got %d bytes, want %d", len(got), len(content))
	}
}

type failingReader struct {
	remaining int
}

func (f *failingReader) Read(p []byte) (int, error) {
	if f.remaining <= 0 {
		return 0, errors.New("simulated crash mid-write")
	}
	n := len(p)
	if n > f.remaining {
		n = f.remaining
	}
	f.remaining -= n
	return n, nil
}

func TestPublishFailureLeavesCanonicalPathAbsent(t *testing.T) {
	dir := t.TempDir()

	_, err := Publish(dir, "segment.mp3", &failingReader{remaining: 4096})
	if err == nil {
		t.Fatal("expected error from failing reader")
	}

	if _, statErr := os.Stat(filepath.Join(dir, "segment.mp3")); !os.IsNotExist(statErr) {
		t.Errorf("canonical path exists after failed publish: %v", statErr)
	}

	// No temp leftovers either: Publish cleans up its own failures.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty dir after failed publish, found %d entries", len(entries))
	}
}

func TestMoveIsIdempotentAck(t *testing.T) {
	src := filepath.Join(t.TempDir(), "dropin.mp3")
	if err := os.WriteFile(src, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()

	if _, err := Move(dir, "dropin.mp3", src); err != nil {
		t.Fatalf("Move: %v", err)
	}

	// The source is gone, so a retried move must fail rather than
	// duplicate the ingestion.
	if _, err := Move(dir, "dropin.mp3", src); err == nil {
		t.Error("expected second Move of same source to fail")
	}
}

func TestSweepTemp(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, tempPrefix+"stale")
	if err := os.WriteFile(stale, []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	keep := filepath.Join(dir, "published.mp3")
	if err := os.WriteFile(keep, []byte("real"), 0o644); err != nil {
		t.Fatal(err)
	}

	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	removed, err := SweepTemp(dir, func(info os.FileInfo) bool {
		return time.Since(info.ModTime()) > time.Hour
	})
	if err != nil {
		t.Fatalf("SweepTemp: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Errorf("published file should survive sweep: %v", err)
	}
}
