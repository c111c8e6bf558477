package models

import (
	"time"
)

// AssetKind classifies playable audio files.
type AssetKind string

const (
	AssetMusic  AssetKind = "music"
	AssetBreak  AssetKind = "break"
	AssetBed    AssetKind = "bed"
	AssetSafety AssetKind = "safety"
)

// Valid reports whether the kind is one of the known values.
func (k AssetKind) Valid() bool {
	switch k {
	case AssetMusic, AssetBreak, AssetBed, AssetSafety:
		return true
	}
	return false
}

// Prunable reports whether housekeeping is ever allowed to delete assets
// of this kind. Safety and bed content is exempt by invariant.
func (k AssetKind) Prunable() bool {
	return k == AssetMusic || k == AssetBreak
}

// QueueName identifies one of the three playout queues.
type QueueName string

const (
	QueueOverride QueueName = "override"
	QueueBreaks   QueueName = "breaks"
	QueueMusic    QueueName = "music"
)

// Valid reports whether the queue name is known.
func (q QueueName) Valid() bool {
	switch q {
	case QueueOverride, QueueBreaks, QueueMusic:
		return true
	}
	return false
}

// Asset is an immutable playable audio file. The ID is the sha256 of the
// file contents, so re-registering the same bytes is a no-op.
type Asset struct {
	ID           string    `gorm:"type:varchar(64);primaryKey"`
	Kind         AssetKind `gorm:"type:varchar(16);index"`
	Title        string    `gorm:"index"`
	Path         string    // relative to the media root
	Duration     time.Duration
	SizeBytes    int64
	LoudnessLUFS float64
	Normalized   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PlayHistory stores one playback-start event. Rows are append-only; only
// housekeeping prunes them, and never inside the selector lookback window.
type PlayHistory struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	AssetID   string    `gorm:"type:varchar(64);index"`
	Queue     QueueName `gorm:"type:varchar(16);index"`
	Title     string
	StartedAt time.Time      `gorm:"index"`
	Metadata  map[string]any `gorm:"serializer:json"`
}

// JobState persists the last fired civil bucket per scheduled job so a
// restart cannot double-fire within the same bucket.
type JobState struct {
	Name        string `gorm:"primaryKey"`
	LastBucket  string `gorm:"type:varchar(32)"`
	LastFiredAt time.Time
	UpdatedAt   time.Time
}

// APIKey is a hashed credential for the control surface.
type APIKey struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string
	KeyHash   string `gorm:"uniqueIndex"`
	KeyPrefix string `gorm:"type:varchar(16)"`
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Revoked reports whether the key has been revoked.
func (k *APIKey) Revoked() bool {
	return k.RevokedAt != nil
}

// Expired reports whether the key has passed its expiry.
func (k *APIKey) Expired() bool {
	return time.Now().After(k.ExpiresAt)
}
