package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyRoundTrip(t *testing.T) {
	secret, hash, err := NewAPISecret()
	require.NoError(t, err)
	require.NotEmpty(t, secret)
	require.NotEqual(t, secret, hash)

	key := FormatAPIKey("user-123", secret)
	userID, gotSecret, err := ParseAPIKey(key)
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
	assert.Equal(t, secret, gotSecret)

	assert.NoError(t, VerifySecret(hash, secret))
	assert.Error(t, VerifySecret(hash, "wrong"))
}

func TestParseAPIKeyRejectsMalformed(t *testing.T) {
	for _, key := range []string{
		"",
		"dck_",
		"dck_onlyuser",
		"dck__secret",
		"dck_user_",
		"other_user_secret",
	} {
		_, _, err := ParseAPIKey(key)
		assert.Error(t, err, "key %q should be rejected", key)
	}
}
