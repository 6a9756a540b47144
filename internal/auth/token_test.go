package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	ts := NewTokenService("test-secret", time.Hour)

	token, err := ts.Issue(42, "admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	identity, err := ts.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), identity.UserID)
	assert.Equal(t, "admin", identity.Role)
	assert.True(t, identity.IsAdmin())
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	ts := NewTokenService("secret-one", time.Hour)
	other := NewTokenService("secret-two", time.Hour)

	token, err := ts.Issue(7, "user")
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	ts := NewTokenService("test-secret", -time.Minute)

	token, err := ts.Issue(7, "user")
	require.NoError(t, err)

	_, err = ts.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	ts := NewTokenService("test-secret", time.Hour)

	_, err := ts.Verify("not-a-token")
	assert.Error(t, err)
}
