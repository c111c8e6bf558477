/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/friendsincode/muninn/internal/assets"
	"github.com/friendsincode/muninn/internal/db"
	"github.com/friendsincode/muninn/internal/models"
)

var (
	importSourceDir string
	importKind      string
	importDryRun    bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk import audio files into the asset library",
	Long: `Import every audio file from a directory into the asset store.

Files are content-addressed, so re-running an import is safe: already
registered files are skipped. Source files are left in place.

Examples:
  # Import a music library
  muninn import --dir /mnt/library --kind music

  # Import the safety filler pool
  muninn import --dir /mnt/filler --kind safety

  # See what would be imported
  muninn import --dir /mnt/library --kind music --dry-run
`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importSourceDir, "dir", "", "Directory to import audio files from (required)")
	importCmd.Flags().StringVar(&importKind, "kind", "music", "Asset kind: music, break, bed or safety")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "List candidate files without importing")
	importCmd.MarkFlagRequired("dir")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	kind := models.AssetKind(importKind)
	if !kind.Valid() {
		return fmt.Errorf("unknown asset kind %q", importKind)
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer db.Close(database)

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	store, err := assets.NewStore(database, cfg.MediaRoot, logger)
	if err != nil {
		return fmt.Errorf("initialize asset store: %w", err)
	}

	logger.Info().
		Str("dir", importSourceDir).
		Str("kind", string(kind)).
		Bool("dry_run", importDryRun).
		Msg("starting library import")

	var imported, skipped, failed int
	ctx := context.Background()

	err = filepath.WalkDir(importSourceDir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !audioExtension(ext) {
			skipped++
			return nil
		}

		if importDryRun {
			fmt.Printf("  would import %s\n", path)
			imported++
			return nil
		}

		src, err := os.Open(path)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("cannot open source file")
			failed++
			return nil
		}
		defer src.Close()

		title := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		asset, err := store.Register(ctx, kind, title, ext, src)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("import failed")
			failed++
			return nil
		}

		imported++
		fmt.Printf("\r%-80s", fmt.Sprintf("imported %d: %s", imported, asset.Title))
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", importSourceDir, err)
	}

	fmt.Printf("\n\nImport Complete!\n")
	fmt.Printf("  Imported: %d\n", imported)
	fmt.Printf("  Skipped:  %d (not audio)\n", skipped)
	fmt.Printf("  Failed:   %d\n", failed)

	if importDryRun {
		fmt.Printf("\nRun without --dry-run to perform the import.\n")
	}

	logger.Info().Int("imported", imported).Msg("library import completed")
	return nil
}

func audioExtension(ext string) bool {
	switch ext {
	case ".mp3", ".flac", ".ogg", ".wav", ".m4a", ".opus", ".aac":
		return true
	}
	return false
}
