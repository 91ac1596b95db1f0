// Package usecase contains application business logic.
package usecase

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/bastionhq/bastion/internal/domain"
)

const (
	credentialKey   = "master_secret"
	minSecretLength = 4

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// dummySalt is used to burn one Argon2 derivation when no secret is
// configured, so that path is timing-indistinguishable from a mismatch.
var dummySalt = []byte("bastion.dummy.salt")

// Argon2Verifier implements domain.CredentialVerifier.
// The secret is stored only as an Argon2id hash in the settings store;
// verification is one-way and constant-time.
type Argon2Verifier struct {
	settings domain.SettingStore
}

// NewArgon2Verifier creates a credential verifier backed by the settings store.
func NewArgon2Verifier(settings domain.SettingStore) *Argon2Verifier {
	return &Argon2Verifier{settings: settings}
}

// SetSecret replaces the stored hash. The settings store writes the new
// value atomically, so a concurrent Verify sees either the old or the new
// hash, never a half-written one.
func (v *Argon2Verifier) SetSecret(newSecret string) error {
	if len(newSecret) < minSecretLength {
		return domain.ErrInvalidSecret
	}

	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	digest := argon2.IDKey([]byte(newSecret), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	encoded := fmt.Sprintf("argon2id$%s$%s",
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest))

	if err := v.settings.SetSetting(credentialKey, encoded); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// Verify compares a candidate against the stored hash.
// Returns false when no secret has been configured.
func (v *Argon2Verifier) Verify(candidate string) (bool, error) {
	if candidate == "" {
		return false, domain.ErrEmptyCredential
	}

	stored, ok, err := v.settings.GetSetting(credentialKey)
	if err != nil {
		return false, fmt.Errorf("failed to load credential: %w", err)
	}
	if !ok {
		// Same work as a real comparison, always false.
		argon2.IDKey([]byte(candidate), dummySalt, argonTime, argonMemory, argonThreads, argonKeyLen)
		return false, nil
	}

	salt, digest, err := decodeCredential(stored)
	if err != nil {
		return false, err
	}

	derived := argon2.IDKey([]byte(candidate), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(derived, digest) == 1, nil
}

// decodeCredential splits the "argon2id$<salt>$<digest>" encoding.
func decodeCredential(stored string) ([]byte, []byte, error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 3 || parts[0] != "argon2id" {
		return nil, nil, fmt.Errorf("malformed credential record")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, fmt.Errorf("malformed credential salt: %w", err)
	}
	digest, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, nil, fmt.Errorf("malformed credential digest: %w", err)
	}
	return salt, digest, nil
}

// Ensure Argon2Verifier implements domain.CredentialVerifier.
var _ domain.CredentialVerifier = (*Argon2Verifier)(nil)
