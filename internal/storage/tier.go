// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the client-side key/value tiers for parley.
package storage

import (
	"errors"
	"sync"
)

// =============================================================================
// KEYS
// =============================================================================

// Persisted client-side keys. Values are plain strings.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"

	// KeyAuthClearedAt is written (unix millis) whenever credentials are
	// cleared so other processes can drop their sessions too.
	KeyAuthClearedAt = "auth_cleared_at"

	// KeyLastChatID remembers the active conversation across restarts.
	KeyLastChatID = "last_chat_id"

	// KeyChatsUpdatedAt is touched after any conversation list mutation.
	KeyChatsUpdatedAt = "chats_updated_at"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrClosed indicates the tier was used after Close.
	ErrClosed = errors.New("storage closed")

	// ErrEmptyKey indicates an empty key was passed to a tier.
	ErrEmptyKey = errors.New("storage key cannot be empty")
)

// =============================================================================
// TIER INTERFACE
// =============================================================================

// Tier is a string key/value store.
//
// Get reports ok=false for a missing key. Remove of a missing key is not an
// error.
type Tier interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

// =============================================================================
// MEMORY TIER
// =============================================================================

// MemoryTier is a process-lifetime Tier. It is the session tier: values
// never outlive the process that wrote them and are invisible to others.
type MemoryTier struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryTier creates an empty in-memory tier.
func NewMemoryTier() *MemoryTier {
	return &MemoryTier{values: make(map[string]string)}
}

// Get returns the value stored under key.
func (m *MemoryTier) Get(key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set stores value under key.
func (m *MemoryTier) Set(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

// Remove deletes key.
func (m *MemoryTier) Remove(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryTier) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
