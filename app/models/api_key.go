package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// APIKey is an organization-scoped machine credential. Only the SHA-256 of
// the raw key is stored.
type APIKey struct {
	ID             string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrganizationID string     `gorm:"type:varchar(36);not null;index" json:"organizationId"`
	Name           string     `gorm:"type:varchar(100);not null" json:"name"`
	KeyHash        string     `gorm:"type:char(64);not null;uniqueIndex" json:"-"`
	Prefix         string     `gorm:"type:varchar(20);not null" json:"prefix"`
	CreatedBy      string     `gorm:"type:varchar(36)" json:"createdBy"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	LastUsedAt     *time.Time `json:"lastUsedAt,omitempty"`
	RevokedAt      *time.Time `json:"revokedAt,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const apiKeyPrefix = "msk_"

func (k *APIKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	return nil
}

// NewAPIKey generates key material for an organization and returns the
// record together with the raw secret. The raw secret is never persisted.
func NewAPIKey(organizationID, name, createdBy string, ttl time.Duration, now time.Time) (*APIKey, string, error) {
	rawKey, prefix, hash, err := generateAPIKeyMaterial()
	if err != nil {
		return nil, "", err
	}
	k := &APIKey{
		OrganizationID: organizationID,
		Name:           strings.TrimSpace(name),
		KeyHash:        hash,
		Prefix:         prefix,
		CreatedBy:      createdBy,
	}
	if ttl > 0 {
		exp := now.Add(ttl).UTC()
		k.ExpiresAt = &exp
	}
	return k, rawKey, nil
}

// IsActive reports whether the key is neither revoked nor expired at now.
func (k *APIKey) IsActive(now time.Time) bool {
	if k == nil || k.KeyHash == "" || k.RevokedAt != nil {
		return false
	}
	if k.ExpiresAt != nil && !now.Before(*k.ExpiresAt) {
		return false
	}
	return true
}

// Revoke marks the key unusable without deleting the record.
func (k *APIKey) Revoke(now time.Time) {
	t := now.UTC()
	k.RevokedAt = &t
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

func generateAPIKeyMaterial() (string, string, string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", err
	}
	encoded := strings.ToLower(apiKeyEncoding.EncodeToString(b))
	rawKey := apiKeyPrefix + encoded
	if len(rawKey) < 12 {
		return "", "", "", fmt.Errorf("api key generation failed: key too short")
	}
	prefix := rawKey[:min(len(rawKey), 16)]
	return rawKey, prefix, HashAPIKey(rawKey), nil
}
