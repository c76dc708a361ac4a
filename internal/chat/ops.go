// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat owns the client-side conversation state.
package chat

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/storage"
)

// ErrNotFound indicates an id that is not in the conversation list.
var ErrNotFound = errors.New("conversation not found")

// =============================================================================
// CONVERSION
// =============================================================================

func toConversations(chats []api.ChatSummary) []model.Conversation {
	convs := make([]model.Conversation, 0, len(chats))
	for _, c := range chats {
		convs = append(convs, c.ToModel())
	}
	return convs
}

func toMessages(msgs []api.ChatMessage) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ToModel())
	}
	return out
}

// =============================================================================
// LOADING
// =============================================================================

// Load replaces the conversation list with the server's. If the last
// conversation the user opened is still listed, its messages are loaded and
// it becomes active.
func (s *Store) Load(ctx context.Context) error {
	epoch := s.epoch()
	s.updateIf(epoch, func(st *state) {
		st.loading = true
		st.err = ""
	})

	chats, err := s.backend.ListChats(ctx)
	if err != nil {
		return s.fail(epoch, err)
	}

	convs := toConversations(chats)
	s.updateIf(epoch, func(st *state) {
		st.convs = convs
		st.loading = false
		if st.find(st.activeID) == nil {
			st.activeID = ""
		}
	})
	s.logger.Debug("conversations loaded", zap.Int("count", len(convs)))

	last := s.lastChatID()
	if last == "" || !containsID(convs, last) {
		return nil
	}

	err = s.loadMessages(ctx, epoch, last)
	if api.Classify(err) == api.KindUnauthorized {
		return err
	}
	s.updateIf(epoch, func(st *state) {
		if st.find(last) != nil {
			st.activeID = last
		}
	})
	return err
}

// Refresh re-fetches the conversation list. Cached message logs survive for
// conversations that are still listed, and the active conversation is
// reloaded unless a send is in flight for it. A conversation with a send in
// flight is kept even when the list predates its creation.
func (s *Store) Refresh(ctx context.Context) error {
	epoch := s.epoch()
	chats, err := s.backend.ListChats(ctx)
	if err != nil {
		return s.fail(epoch, err)
	}

	var reload, vanished string
	s.updateIf(epoch, func(st *state) {
		convs := toConversations(chats)
		for i := range convs {
			if prev := st.find(convs[i].ID); prev != nil {
				convs[i].Messages = prev.Messages
			}
		}
		var busy []model.Conversation
		for _, c := range st.convs {
			if st.phases[c.ID].Busy() && !containsID(convs, c.ID) {
				busy = append(busy, c)
			}
		}
		st.convs = append(busy, convs...)

		if st.activeID != "" && st.find(st.activeID) == nil {
			vanished = st.activeID
			st.activeID = ""
		}
		for id := range st.phases {
			if id != "" && st.find(id) == nil {
				delete(st.phases, id)
			}
		}
		if active := st.find(st.activeID); active != nil && active.Loaded() && !st.phases[active.ID].Busy() {
			reload = active.ID
		}
	})

	if vanished != "" && s.lastChatID() == vanished {
		s.removeMarker(storage.KeyLastChatID)
	}
	if reload != "" {
		return s.loadMessages(ctx, epoch, reload)
	}
	return nil
}

// loadMessages replaces the cached log of conversation id.
func (s *Store) loadMessages(ctx context.Context, epoch uint64, id string) error {
	msgs, err := s.backend.GetChat(ctx, id)
	if err != nil {
		return s.fail(epoch, err, zap.String("chat_id", id))
	}
	messages := toMessages(msgs)
	s.updateIf(epoch, func(st *state) {
		if c := st.find(id); c != nil {
			c.Messages = messages
		}
	})
	return nil
}

func containsID(convs []model.Conversation, id string) bool {
	for i := range convs {
		if convs[i].ID == id {
			return true
		}
	}
	return false
}

// =============================================================================
// SELECTION
// =============================================================================

// Select makes conversation id active, remembers it, and fetches its
// messages if they are not cached.
func (s *Store) Select(ctx context.Context, id string) error {
	epoch := s.epoch()
	found, cached := false, false
	s.updateIf(epoch, func(st *state) {
		c := st.find(id)
		if c == nil {
			return
		}
		found = true
		cached = c.Loaded()
		st.activeID = id
	})
	if !found {
		return ErrNotFound
	}

	s.setMarker(storage.KeyLastChatID, id)
	if cached {
		return nil
	}
	return s.loadMessages(ctx, epoch, id)
}

// NewConversation deselects the active conversation so the next Send
// creates one. It clears the search query and makes no backend call.
func (s *Store) NewConversation() {
	s.update(func(st *state) {
		st.activeID = ""
		st.searchQuery = ""
	})
	s.removeMarker(storage.KeyLastChatID)
}

// =============================================================================
// EDITING
// =============================================================================

// Delete removes conversation id on the backend, then locally. On failure
// local state is unchanged.
func (s *Store) Delete(ctx context.Context, id string) error {
	epoch := s.epoch()
	if err := s.backend.DeleteChat(ctx, id); err != nil {
		return s.fail(epoch, err, zap.String("chat_id", id))
	}

	s.updateIf(epoch, func(st *state) {
		for i := range st.convs {
			if st.convs[i].ID == id {
				st.convs = append(st.convs[:i:i], st.convs[i+1:]...)
				break
			}
		}
		delete(st.phases, id)
		if st.activeID == id {
			st.activeID = ""
		}
	})

	if s.lastChatID() == id {
		s.removeMarker(storage.KeyLastChatID)
	}
	s.touchChats()
	return nil
}

// Rename sets the title of conversation id. A blank title is ignored. The
// local title changes only after the backend accepts it.
func (s *Store) Rename(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}

	epoch := s.epoch()
	stored, err := s.backend.UpdateTitle(ctx, id, title)
	if err != nil {
		return s.fail(epoch, err, zap.String("chat_id", id))
	}
	if strings.TrimSpace(stored) == "" {
		stored = title
	}

	s.updateIf(epoch, func(st *state) {
		if c := st.find(id); c != nil {
			c.Title = stored
		}
	})
	s.touchChats()
	return nil
}

// =============================================================================
// SEARCH
// =============================================================================

// SetSearchQuery sets the sidebar filter.
func (s *Store) SetSearchQuery(q string) {
	s.update(func(st *state) {
		st.searchQuery = q
	})
}

// Filtered returns the conversations matching the current search query.
func (s *Store) Filtered() []model.Conversation {
	return s.Snapshot().Filtered()
}

// ClearError dismisses the current error message.
func (s *Store) ClearError() {
	s.update(func(st *state) {
		st.err = ""
	})
}
