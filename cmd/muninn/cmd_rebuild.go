/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/muninn/internal/assets"
	"github.com/friendsincode/muninn/internal/db"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild asset records from the media tree",
	Long: `Walk the media root and register any file missing from the database.

The media tree is the source of truth. Use this after restoring a stale
database backup or after copying media onto a fresh install. The server
also runs this recovery pass on every start; the command exists for
offline repair.
`,
	RunE: runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
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

	recovered, err := store.Rebuild(context.Background())
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}

	logger.Info().Int("recovered", recovered).Msg("asset rebuild complete")
	fmt.Printf("Recovered %d asset record(s).\n", recovered)
	return nil
}
