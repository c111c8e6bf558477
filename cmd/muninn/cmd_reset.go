/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/friendsincode/muninn/internal/db"
	"github.com/friendsincode/muninn/internal/scheduler"
)

var resetJobsForce bool

var resetJobsCmd = &cobra.Command{
	Use:   "reset-jobs",
	Short: "Clear scheduler job claims",
	Long: `Clear persisted scheduler job state.

Every job re-fires in its next civil-time bucket as if it had never run.
Use this after restoring a database backup or when a bucket claim is
stuck from a crashed run.

Examples:
  # Interactive reset (will prompt for confirmation)
  muninn reset-jobs

  # Force reset without confirmation
  muninn reset-jobs --force
`,
	RunE: runResetJobs,
}

func init() {
	resetJobsCmd.Flags().BoolVarP(&resetJobsForce, "force", "f", false, "Skip confirmation prompt")
	rootCmd.AddCommand(resetJobsCmd)
}

func runResetJobs(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	if !resetJobsForce {
		fmt.Println("This clears all scheduler claims; every job fires again in its next bucket.")
		fmt.Print("Type 'yes' to confirm: ")
		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		if strings.TrimSpace(strings.ToLower(response)) != "yes" {
			fmt.Println("Reset cancelled.")
			return nil
		}
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer db.Close(database)

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	cleared, err := scheduler.ResetJobs(context.Background(), database)
	if err != nil {
		return fmt.Errorf("reset jobs: %w", err)
	}

	logger.Info().Int64("cleared", cleared).Msg("scheduler job state cleared")
	fmt.Printf("Cleared %d job claim(s).\n", cleared)
	return nil
}
