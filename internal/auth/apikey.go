/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package auth protects the control API. Credentials are either sha256
// hashed API keys or HS256 JWT bearer tokens; the station has no user
// accounts, so a key is its own identity.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn/internal/models"
)

const (
	APIKeyPrefix      = "mn_"
	APIKeyRandomBytes = 24
)

var (
	// ErrAPIKeyNotFound is returned when an API key doesn't exist.
	ErrAPIKeyNotFound = errors.New("api key not found")

	// ErrAPIKeyExpired is returned when an API key has expired.
	ErrAPIKeyExpired = errors.New("api key expired")

	// ErrAPIKeyRevoked is returned when an API key has been revoked.
	ErrAPIKeyRevoked = errors.New("api key revoked")
)

// GenerateAPIKey creates a new API key. It returns the plaintext key,
// shown to the operator exactly once, and the model to store.
func GenerateAPIKey(name string, expiresIn time.Duration) (string, *models.APIKey, error) {
	randomBytes := make([]byte, APIKeyRandomBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", nil, err
	}

	plaintextKey := APIKeyPrefix + hex.EncodeToString(randomBytes)

	hash := sha256.Sum256([]byte(plaintextKey))

	apiKey := &models.APIKey{
		ID:        uuid.NewString(),
		Name:      name,
		KeyHash:   hex.EncodeToString(hash[:]),
		KeyPrefix: plaintextKey[:len(APIKeyPrefix)+8],
		ExpiresAt: time.Now().Add(expiresIn),
	}

	return plaintextKey, apiKey, nil
}

// ValidateAPIKey checks a plaintext key against the stored hashes and
// returns the claims it grants.
func ValidateAPIKey(db *gorm.DB, plaintextKey string) (*Claims, error) {
	hash := sha256.Sum256([]byte(plaintextKey))
	keyHash := hex.EncodeToString(hash[:])

	var apiKey models.APIKey
	result := db.Where("key_hash = ?", keyHash).First(&apiKey)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrAPIKeyNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}

	if apiKey.Revoked() {
		return nil, ErrAPIKeyRevoked
	}
	if apiKey.Expired() {
		return nil, ErrAPIKeyExpired
	}

	return &Claims{Name: apiKey.Name}, nil
}

// RevokeAPIKey revokes a key by id.
func RevokeAPIKey(db *gorm.DB, keyID string) error {
	result := db.Model(&models.APIKey{}).
		Where("id = ?", keyID).
		Update("revoked_at", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

// ListAPIKeys returns all keys, newest first, hashes included only as
// stored (never the plaintext).
func ListAPIKeys(db *gorm.DB) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := db.Order("created_at DESC").Find(&keys).Error
	return keys, err
}
