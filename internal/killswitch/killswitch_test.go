/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package killswitch

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestEngageDisengage(t *testing.T) {
	sw := New(filepath.Join(t.TempDir(), "killswitch"), zerolog.Nop())

	if sw.Snapshot() {
		t.Fatal("fresh switch should be disengaged")
	}

	if err := sw.Engage("operator request"); err != nil {
		t.Fatalf("Engage: %v", err)
	}
	if !sw.Snapshot() {
		t.Error("switch should be engaged after Engage")
	}

	if err := sw.Disengage(); err != nil {
		t.Fatalf("Disengage: %v", err)
	}
	if sw.Snapshot() {
		t.Error("switch should be disengaged after Disengage")
	}

	// Disengaging twice is a no-op, not an error.
	if err := sw.Disengage(); err != nil {
		t.Errorf("second Disengage: %v", err)
	}
}
