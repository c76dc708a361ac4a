// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth owns the bearer token used to talk to the chat backend.
package auth

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Low iteration count keeps tests fast; production uses PBKDF2Iterations.
const testIterations = 1000

func TestAgeSealer_RoundTripAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "identity.txt")

	first, err := LoadAgeSealer(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.Recipient(), "age1"))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	sealed, err := first.Seal("hello")
	require.NoError(t, err)

	second, err := LoadAgeSealer(path)
	require.NoError(t, err)
	assert.Equal(t, first.Recipient(), second.Recipient())

	plain, err := second.Unseal(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hello", plain)
}

func TestAgeSealer_WrongIdentity(t *testing.T) {
	a, err := LoadAgeSealer(filepath.Join(t.TempDir(), "a.txt"))
	require.NoError(t, err)
	b, err := LoadAgeSealer(filepath.Join(t.TempDir(), "b.txt"))
	require.NoError(t, err)

	sealed, err := a.Seal("hello")
	require.NoError(t, err)

	_, err = b.Unseal(sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestAgeSealer_PlaintextPassthrough(t *testing.T) {
	s, err := LoadAgeSealer(filepath.Join(t.TempDir(), "identity.txt"))
	require.NoError(t, err)

	plain, err := s.Unseal("legacy-token")
	require.NoError(t, err)
	assert.Equal(t, "legacy-token", plain)
}

func TestPassphraseSealer_RoundTrip(t *testing.T) {
	salt, err := LoadOrCreateSalt(filepath.Join(t.TempDir(), "seal.salt"))
	require.NoError(t, err)
	assert.Len(t, salt, SaltSize)

	s, err := NewPassphraseSealer("correct horse", salt, testIterations)
	require.NoError(t, err)

	sealed, err := s.Seal("token-value")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, EncryptedPrefix))

	again, err := s.Seal("token-value")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonces must differ")

	plain, err := s.Unseal(sealed)
	require.NoError(t, err)
	assert.Equal(t, "token-value", plain)
}

func TestPassphraseSealer_WrongPassphrase(t *testing.T) {
	salt, err := LoadOrCreateSalt(filepath.Join(t.TempDir(), "seal.salt"))
	require.NoError(t, err)

	right, err := NewPassphraseSealer("right", salt, testIterations)
	require.NoError(t, err)
	wrong, err := NewPassphraseSealer("wrong", salt, testIterations)
	require.NoError(t, err)

	sealed, err := right.Seal("token-value")
	require.NoError(t, err)

	_, err = wrong.Unseal(sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = right.Unseal(EncryptedPrefix + "AAAA")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestLoadOrCreateSalt_Stable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seal.salt")
	first, err := LoadOrCreateSalt(path)
	require.NoError(t, err)
	second, err := LoadOrCreateSalt(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNewPassphraseSealer_Validation(t *testing.T) {
	_, err := NewPassphraseSealer("", make([]byte, SaltSize), testIterations)
	assert.Error(t, err)
	_, err = NewPassphraseSealer("p", []byte("short"), testIterations)
	assert.Error(t, err)
}
