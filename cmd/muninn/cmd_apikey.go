/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/muninn/internal/auth"
	"github.com/friendsincode/muninn/internal/db"
)

var (
	apikeyName      string
	apikeyExpiresIn time.Duration
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage control API keys",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new API key",
	Long: `Create an API key for the control API.

The plaintext key is printed exactly once; only its hash is stored.

Examples:
  muninn apikey create --name playout-engine
  muninn apikey create --name ops-dashboard --expires-in 720h
`,
	RunE: runAPIKeyCreate,
}

var apikeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	RunE:  runAPIKeyList,
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke <key-id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyRevoke,
}

func init() {
	apikeyCreateCmd.Flags().StringVar(&apikeyName, "name", "", "Human readable key name (required)")
	apikeyCreateCmd.Flags().DurationVar(&apikeyExpiresIn, "expires-in", 0, "Key lifetime, 0 means no expiry")
	apikeyCreateCmd.MarkFlagRequired("name")

	apikeyCmd.AddCommand(apikeyCreateCmd)
	apikeyCmd.AddCommand(apikeyListCmd)
	apikeyCmd.AddCommand(apikeyRevokeCmd)
	rootCmd.AddCommand(apikeyCmd)
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
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

	plaintext, key, err := auth.GenerateAPIKey(apikeyName, apikeyExpiresIn)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := database.Create(key).Error; err != nil {
		return fmt.Errorf("store key: %w", err)
	}

	fmt.Printf("API key created.\n\n")
	fmt.Printf("  ID:   %s\n", key.ID)
	fmt.Printf("  Name: %s\n", key.Name)
	if !key.ExpiresAt.IsZero() {
		fmt.Printf("  Expires: %s\n", key.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Printf("\n  %s\n\n", plaintext)
	fmt.Println("Store this key now; it cannot be shown again.")
	return nil
}

func runAPIKeyList(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer db.Close(database)

	keys, err := auth.ListAPIKeys(database)
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}

	if len(keys) == 0 {
		fmt.Println("No API keys.")
		return nil
	}

	fmt.Printf("%-38s %-20s %-12s %s\n", "ID", "NAME", "PREFIX", "STATUS")
	for _, key := range keys {
		status := "active"
		if key.Revoked() {
			status = "revoked"
		} else if key.Expired() {
			status = "expired"
		}
		fmt.Printf("%-38s %-20s %-12s %s\n", key.ID, key.Name, key.KeyPrefix, status)
	}
	return nil
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer db.Close(database)

	if err := auth.RevokeAPIKey(database, args[0]); err != nil {
		return fmt.Errorf("revoke key: %w", err)
	}

	fmt.Printf("Key %s revoked.\n", args[0])
	return nil
}
