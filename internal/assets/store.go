/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package assets owns playable file metadata. Assets are content-addressed
// (sha256 of the bytes) and immutable once registered; only housekeeping
// deletes them, and never safety or bed content.
package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn/internal/handoff"
	"github.com/friendsincode/muninn/internal/models"
)

var (
	// ErrNotFound indicates the asset does not exist in the store.
	ErrNotFound = errors.New("asset not found")

	// ErrProtectedKind indicates a delete was attempted on a kind that
	// housekeeping must never prune.
	ErrProtectedKind = errors.New("asset kind is protected from deletion")
)

// Store provides read/write access to asset metadata and files.
type Store struct {
	db        *gorm.DB
	mediaRoot string
	logger    zerolog.Logger
}

// NewStore creates an asset store rooted at mediaRoot.
func NewStore(db *gorm.DB, mediaRoot string, logger zerolog.Logger) (*Store, error) {
	for _, kind := range []models.AssetKind{models.AssetMusic, models.AssetBreak, models.AssetBed, models.AssetSafety} {
		if err := os.MkdirAll(filepath.Join(mediaRoot, string(kind)), 0o755); err != nil {
			return nil, fmt.Errorf("create media dir %s: %w", kind, err)
		}
	}
	return &Store{db: db, mediaRoot: mediaRoot, logger: logger}, nil
}

// Register streams src into the store, computing the content hash on the
// way. The file lands under <mediaRoot>/<kind>/<hash><ext> via a temp
// write and atomic rename. Re-registering identical bytes returns the
// existing asset.
func (s *Store) Register(ctx context.Context, kind models.AssetKind, title, ext string, src io.Reader) (*models.Asset, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid asset kind %q", kind)
	}

	kindDir := filepath.Join(s.mediaRoot, string(kind))
	tmp, err := os.CreateTemp(kindDir, ".register-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), src)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("write asset: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return nil, fmt.Errorf("sync asset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("close asset: %w", err)
	}

	id := hex.EncodeToString(hasher.Sum(nil))

	var existing models.Asset
	err = s.db.WithContext(ctx).First(&existing, "id = ?", id).Error
	if err == nil {
		os.Remove(tmpPath)
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("lookup asset: %w", err)
	}

	name := id + normalizeExt(ext)
	if _, err := handoff.Move(kindDir, name, tmpPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("place asset: %w", err)
	}

	asset := &models.Asset{
		ID:        id,
		Kind:      kind,
		Title:     title,
		Path:      filepath.Join(string(kind), name),
		SizeBytes: size,
	}
	if err := s.db.WithContext(ctx).Create(asset).Error; err != nil {
		return nil, fmt.Errorf("create asset row: %w", err)
	}

	s.logger.Info().
		Str("asset", id).
		Str("kind", string(kind)).
		Int64("bytes", size).
		Msg("asset registered")
	return asset, nil
}

// Get returns an asset by content id.
func (s *Store) Get(ctx context.Context, id string) (*models.Asset, error) {
	var asset models.Asset
	err := s.db.WithContext(ctx).First(&asset, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query asset: %w", err)
	}
	return &asset, nil
}

// ListByKind returns all assets of the given kind, oldest first.
func (s *Store) ListByKind(ctx context.Context, kind models.AssetKind) ([]models.Asset, error) {
	var out []models.Asset
	err := s.db.WithContext(ctx).
		Where("kind = ?", kind).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	return out, nil
}

// ListOlderThan returns assets of the given kind created before cutoff.
func (s *Store) ListOlderThan(ctx context.Context, kind models.AssetKind, cutoff time.Time) ([]models.Asset, error) {
	var out []models.Asset
	err := s.db.WithContext(ctx).
		Where("kind = ?", kind).
		Where("created_at < ?", cutoff).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	return out, nil
}

// AbsolutePath resolves an asset's file location on disk.
func (s *Store) AbsolutePath(a *models.Asset) string {
	return filepath.Join(s.mediaRoot, a.Path)
}

// Open opens the asset's file for reading.
func (s *Store) Open(a *models.Asset) (*os.File, error) {
	return os.Open(s.AbsolutePath(a))
}

// Delete removes an asset's file and row. Safety and bed kinds are
// protected by invariant and always refused.
func (s *Store) Delete(ctx context.Context, id string) error {
	asset, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !asset.Kind.Prunable() {
		return ErrProtectedKind
	}

	if err := os.Remove(s.AbsolutePath(asset)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove asset file: %w", err)
	}
	if err := s.db.WithContext(ctx).Delete(&models.Asset{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete asset row: %w", err)
	}

	s.logger.Info().Str("asset", id).Str("kind", string(asset.Kind)).Msg("asset deleted")
	return nil
}

// Rebuild walks the media root and re-creates missing rows from the files
// on disk. This is the recovery path for a corrupted store: the filesystem
// is the source of truth.
func (s *Store) Rebuild(ctx context.Context) (int, error) {
	recovered := 0
	for _, kind := range []models.AssetKind{models.AssetMusic, models.AssetBreak, models.AssetBed, models.AssetSafety} {
		kindDir := filepath.Join(s.mediaRoot, string(kind))
		err := filepath.WalkDir(kindDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return err
			}

			id := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
			var count int64
			if err := s.db.WithContext(ctx).Model(&models.Asset{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return err
			}
			asset := &models.Asset{
				ID:        id,
				Kind:      kind,
				Title:     id[:minInt(12, len(id))],
				Path:      filepath.Join(string(kind), d.Name()),
				SizeBytes: info.Size(),
			}
			if err := s.db.WithContext(ctx).Create(asset).Error; err != nil {
				return err
			}
			recovered++
			return nil
		})
		if err != nil {
			return recovered, fmt.Errorf("rebuild %s: %w", kind, err)
		}
	}

	if recovered > 0 {
		s.logger.Info().Int("recovered", recovered).Msg("asset store rebuilt from filesystem")
	}
	return recovered, nil
}

func normalizeExt(ext string) string {
	if ext == "" {
		return ".audio"
	}
	if !strings.HasPrefix(ext, ".") {
		return "." + ext
	}
	return strings.ToLower(ext)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
