package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastionhq/bastion/internal/domain"
)

// TestSetSecret_TooShort verifies length validation before any mutation
func TestSetSecret_TooShort(t *testing.T) {
	settings := newMemSettings()
	v := NewArgon2Verifier(settings)

	err := v.SetSecret("abc")
	assert.ErrorIs(t, err, domain.ErrInvalidSecret)

	_, ok, _ := settings.GetSetting(credentialKey)
	assert.False(t, ok, "nothing should be stored after a rejected secret")
}

// TestVerify_CorrectAndWrongSecret verifies one-way verification
func TestVerify_CorrectAndWrongSecret(t *testing.T) {
	v := NewArgon2Verifier(newMemSettings())
	require.NoError(t, v.SetSecret("hunter22"))

	ok, err := v.Verify("hunter22")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Verify("hunter23")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestVerify_NoSecretConfigured verifies false (not an error) when unset
func TestVerify_NoSecretConfigured(t *testing.T) {
	v := NewArgon2Verifier(newMemSettings())

	ok, err := v.Verify("anything")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestVerify_EmptyCandidate verifies malformed input is rejected outright
func TestVerify_EmptyCandidate(t *testing.T) {
	v := NewArgon2Verifier(newMemSettings())

	_, err := v.Verify("")
	assert.ErrorIs(t, err, domain.ErrEmptyCredential)
}

// TestSetSecret_NeverStoresPlaintext verifies only a salted hash is kept
func TestSetSecret_NeverStoresPlaintext(t *testing.T) {
	settings := newMemSettings()
	v := NewArgon2Verifier(settings)
	require.NoError(t, v.SetSecret("correct horse battery"))

	stored, ok, _ := settings.GetSetting(credentialKey)
	require.True(t, ok)
	assert.NotContains(t, stored, "correct horse battery")
	assert.True(t, strings.HasPrefix(stored, "argon2id$"))
}

// TestSetSecret_ReplacesHash verifies the old secret stops verifying
func TestSetSecret_ReplacesHash(t *testing.T) {
	v := NewArgon2Verifier(newMemSettings())
	require.NoError(t, v.SetSecret("first-secret"))
	require.NoError(t, v.SetSecret("second-secret"))

	ok, err := v.Verify("first-secret")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = v.Verify("second-secret")
	require.NoError(t, err)
	assert.True(t, ok)
}
