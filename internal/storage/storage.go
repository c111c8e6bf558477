/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package storage provides the archive tier: an object store that
// housekeeping writes pruned content into before deleting it locally.
// Archiving is strictly best-effort side storage; playout never reads
// from it.
package storage

import (
	"context"
	"io"
)

// Archive is an object storage backend keyed by relative path.
type Archive interface {
	// Store writes the object under key, replacing any previous object.
	Store(ctx context.Context, key string, body io.Reader) error
	// Delete removes the object. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
}
