// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tabsync keeps parley instances on one machine in agreement.
package tabsync

import (
	"sync"
	"time"

	"github.com/jeranaias/parley/internal/storage"
)

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// Kind identifies a cross-instance notification.
type Kind int

const (
	// SessionCleared means another instance logged out.
	SessionCleared Kind = iota + 1

	// ConversationsChanged means another instance changed the conversation
	// list or a conversation's contents.
	ConversationsChanged
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case SessionCleared:
		return "session_cleared"
	case ConversationsChanged:
		return "conversations_changed"
	default:
		return "unknown"
	}
}

// Notification is one signal from another instance.
type Notification struct {
	Kind   Kind
	Key    string
	Origin string
	At     time.Time
}

// Classify maps a storage event to a notification kind. Keys other than the
// two markers are not notifications.
func Classify(ev storage.Event) (Kind, bool) {
	if ev.Removed {
		return 0, false
	}
	switch ev.Key {
	case storage.KeyAuthClearedAt:
		return SessionCleared, true
	case storage.KeyChatsUpdatedAt:
		return ConversationsChanged, true
	default:
		return 0, false
	}
}

// =============================================================================
// BUS
// =============================================================================

// subscriberBuffer is the per-subscriber queue depth. Every handler does a
// full reload, so a dropped duplicate loses nothing while one is queued.
const subscriberBuffer = 16

// Bus fans notifications out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]subscription
	nextID int
}

type subscription struct {
	kinds map[Kind]bool
	ch    chan Notification
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]subscription)}
}

// Subscribe returns a channel receiving notifications of the given kinds,
// or of every kind when none are given. cancel closes the channel.
func (b *Bus) Subscribe(kinds ...Kind) (<-chan Notification, func()) {
	sub := subscription{ch: make(chan Notification, subscriberBuffer)}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(sub.ch)
		})
	}
}

// Publish delivers n to every matching subscriber without blocking. It
// returns how many subscribers accepted it.
func (b *Bus) Publish(n Notification) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, sub := range b.subs {
		if sub.kinds != nil && !sub.kinds[n.Kind] {
			continue
		}
		select {
		case sub.ch <- n:
			delivered++
		default:
			// Queue full: an identical reload is already pending
		}
	}
	return delivered
}
