package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAPIKey(t *testing.T) {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	k, raw, err := NewAPIKey("org-1", " reporting ", "admin-1", 0, now)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	assert.True(t, strings.HasPrefix(raw, apiKeyPrefix))
	assert.Equal(t, HashAPIKey(raw), k.KeyHash)
	assert.Equal(t, raw[:16], k.Prefix)
	assert.Equal(t, "reporting", k.Name)
	assert.Nil(t, k.ExpiresAt)
	assert.True(t, k.IsActive(now))
}

func TestAPIKeyExpiry(t *testing.T) {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	k, _, err := NewAPIKey("org-1", "short", "admin-1", 24*time.Hour, now)
	require.NoError(t, err)
	require.NotNil(t, k.ExpiresAt)

	assert.True(t, k.IsActive(now.Add(23*time.Hour)))
	assert.False(t, k.IsActive(now.Add(24*time.Hour)))
}

func TestAPIKeyRevoke(t *testing.T) {
	now := time.Now()
	k, _, err := NewAPIKey("org-1", "ci", "admin-1", 0, now)
	require.NoError(t, err)

	k.Revoke(now)

	assert.False(t, k.IsActive(now))
	assert.NotNil(t, k.RevokedAt)
}

func TestHashAPIKeyTrimsWhitespace(t *testing.T) {
	assert.Equal(t, HashAPIKey("msk_abc"), HashAPIKey("  msk_abc \n"))
}
