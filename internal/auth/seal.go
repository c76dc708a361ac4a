// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth owns the bearer token used to talk to the chat backend.
package auth

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"filippo.io/age"
	"golang.org/x/crypto/pbkdf2"

	"github.com/jeranaias/parley/internal/util"
)

// =============================================================================
// SEALER INTERFACE
// =============================================================================

// Sealer protects credential values at rest.
//
// Unseal returns values that carry no seal prefix unchanged, so tokens saved
// before sealing was enabled keep working.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Unseal(value string) (string, error)
}

var (
	// ErrInvalidCiphertext indicates the sealed value is not well formed.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")

	// ErrDecryptionFailed indicates the wrong key or tampered data.
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")
)

// =============================================================================
// AGE SEALER
// =============================================================================

// AgePrefix marks a value sealed by AgeSealer.
const AgePrefix = "age:"

// AgeSealer seals values to an age X25519 identity.
type AgeSealer struct {
	identity *age.X25519Identity
}

// NewAgeSealer creates a sealer for identity.
func NewAgeSealer(identity *age.X25519Identity) *AgeSealer {
	return &AgeSealer{identity: identity}
}

// LoadAgeSealer reads the identity file at path, generating and saving a new
// identity (mode 0600) if the file does not exist.
func LoadAgeSealer(path string) (*AgeSealer, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		identity, err := age.GenerateX25519Identity()
		if err != nil {
			return nil, fmt.Errorf("generating age identity: %w", err)
		}
		content := fmt.Sprintf("# created: %s\n# public key: %s\n%s\n",
			time.Now().UTC().Format(time.RFC3339), identity.Recipient(), identity)
		if err := util.AtomicWriteFile(path, []byte(content), 0600); err != nil {
			return nil, fmt.Errorf("saving age identity: %w", err)
		}
		return NewAgeSealer(identity), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading age identity: %w", err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing age identity: %w", err)
	}
	for _, id := range identities {
		if x, ok := id.(*age.X25519Identity); ok {
			return NewAgeSealer(x), nil
		}
	}
	return nil, fmt.Errorf("no X25519 identity in %s", path)
}

// Recipient returns the public key values are sealed to.
func (a *AgeSealer) Recipient() string {
	return a.identity.Recipient().String()
}

// Seal encrypts plaintext and returns it base64 encoded with AgePrefix.
func (a *AgeSealer) Seal(plaintext string) (string, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, a.identity.Recipient())
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	return AgePrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Unseal reverses Seal.
func (a *AgeSealer) Unseal(value string) (string, error) {
	encoded, ok := strings.CutPrefix(value, AgePrefix)
	if !ok {
		return value, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), a.identity)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	return string(plaintext), nil
}

// =============================================================================
// PASSPHRASE SEALER
// =============================================================================

// Passphrase sealing parameters.
const (
	// EncryptedPrefix marks a value sealed by PassphraseSealer
	// (format: ENC:base64(nonce|ciphertext|tag)).
	EncryptedPrefix = "ENC:"

	// KeySize is the AES-256 key size.
	KeySize = 32

	// SaltSize is the key derivation salt size.
	SaltSize = 32

	// PBKDF2Iterations follows the OWASP 2023 recommendation for
	// PBKDF2-SHA-256.
	PBKDF2Iterations = 600000
)

// PassphraseSealer seals values with AES-256-GCM under a key derived from a
// passphrase with PBKDF2-SHA-256. The key is derived once at construction.
type PassphraseSealer struct {
	aead cipher.AEAD
}

// NewPassphraseSealer derives the sealing key. iterations <= 0 selects
// PBKDF2Iterations.
func NewPassphraseSealer(passphrase string, salt []byte, iterations int) (*PassphraseSealer, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase cannot be empty")
	}
	if len(salt) < 16 {
		return nil, errors.New("salt must be at least 16 bytes")
	}
	if iterations <= 0 {
		iterations = PBKDF2Iterations
	}

	key := pbkdf2.Key([]byte(passphrase), salt, iterations, KeySize, sha256.New)
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return &PassphraseSealer{aead: gcm}, nil
}

// LoadOrCreateSalt reads the salt file at path, creating it with fresh random
// bytes if missing.
func LoadOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil {
		if len(salt) < 16 {
			return nil, fmt.Errorf("salt file %s is too short", path)
		}
		return salt, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read salt: %w", err)
	}

	salt = make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if err := util.AtomicWriteFile(path, salt, 0600); err != nil {
		return nil, fmt.Errorf("failed to save salt: %w", err)
	}
	return salt, nil
}

// Seal encrypts plaintext with a random nonce.
func (p *PassphraseSealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, p.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := p.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Unseal reverses Seal.
func (p *PassphraseSealer) Unseal(value string) (string, error) {
	encoded, ok := strings.CutPrefix(value, EncryptedPrefix)
	if !ok {
		return value, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	ns := p.aead.NonceSize()
	if len(raw) < ns+p.aead.Overhead() {
		return "", ErrInvalidCiphertext
	}
	plaintext, err := p.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// zeroBytes clears key material once it is no longer needed.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
