// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat owns the client-side conversation state.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/storage"
)

// =============================================================================
// SEND
// =============================================================================

// Send posts text to the active conversation, or to a new one when none is
// active, and streams the reply into the store. Blank text is ignored.
//
// The target conversation is fixed when Send is called. Sends to the same
// conversation run one at a time; a second Send waits for the first.
//
// The returned error is the first failure of the send itself; a failed
// stream still triggers the reload of the message log.
func (s *Store) Send(ctx context.Context, text string) error {
	message := strings.TrimSpace(text)
	if message == "" {
		return nil
	}

	s.mu.Lock()
	target := s.st.activeID
	epoch := s.st.epoch
	s.mu.Unlock()

	unlock, err := s.sends.Lock(ctx, target)
	if err != nil {
		return err
	}
	defer unlock()

	s.updateIf(epoch, func(st *state) {
		st.err = ""
		st.setPhase(target, PhaseSending)
	})
	defer s.updateIf(epoch, func(st *state) {
		st.setPhase(target, PhaseIdle)
	})

	id, release, err := s.post(ctx, epoch, target, message)
	if err != nil {
		return s.fail(epoch, err)
	}
	if release != nil {
		defer release()
	}
	if id != target {
		defer s.updateIf(epoch, func(st *state) {
			st.setPhase(id, PhaseIdle)
		})
	}

	streamErr := s.stream(ctx, epoch, id, message)
	if api.Classify(streamErr) == api.KindUnauthorized {
		return s.fail(epoch, streamErr)
	}

	// The backend's log is authoritative even after a failed stream.
	reloadErr := s.loadMessages(context.WithoutCancel(ctx), epoch, id)
	s.touchChats()

	if streamErr != nil {
		return streamErr
	}
	return reloadErr
}

// post delivers the user message and makes it visible locally. It returns
// the conversation id, which is new when target is "". For a new
// conversation the id's send lock is held before the id becomes active, and
// release frees it.
func (s *Store) post(ctx context.Context, epoch uint64, target, message string) (id string, release func(), err error) {
	if target != "" {
		if _, err := s.backend.CreateOrAppend(ctx, message, target); err != nil {
			return "", nil, err
		}
		s.updateIf(epoch, func(st *state) {
			if c := st.find(target); c != nil {
				c.Append(model.Final{Role: model.RoleUser, Content: message, CreatedAt: s.now()})
			}
		})
		return target, nil, nil
	}

	id, err = s.backend.CreateOrAppend(ctx, message, "")
	if err != nil {
		return "", nil, err
	}
	// Nobody else knows id yet, so this does not wait.
	release, err = s.sends.Lock(context.WithoutCancel(ctx), id)
	if err != nil {
		return "", nil, err
	}

	now := s.now()
	conv := model.Conversation{
		ID:        id,
		Title:     model.DefaultTitle,
		CreatedAt: now,
		Messages:  []model.Message{model.Final{Role: model.RoleUser, Content: message, CreatedAt: now}},
	}
	applied := s.updateIf(epoch, func(st *state) {
		st.convs = append([]model.Conversation{conv}, st.convs...)
		st.activeID = id
		st.setPhase(id, PhaseSending)
	})
	if !applied {
		release()
		return "", nil, fmt.Errorf("session ended while creating conversation %s: %w", id, context.Canceled)
	}
	s.setMarker(storage.KeyLastChatID, id)
	s.logger.Info("conversation created", zap.String("chat_id", id))

	s.tasks.Go("title:"+id, func(ctx context.Context) error {
		return s.generateTitle(ctx, epoch, id, message)
	})
	return id, release, nil
}

// stream appends the reply placeholder and grows it chunk by chunk. On
// failure the placeholder becomes the failure notice and the phase moves to
// PhaseFailed.
func (s *Store) stream(ctx context.Context, epoch uint64, id, message string) error {
	s.updateIf(epoch, func(st *state) {
		if c := st.find(id); c != nil {
			c.StartStreaming()
		}
		st.setPhase(id, PhaseStreaming)
	})

	var acc strings.Builder
	err := s.backend.StreamChat(ctx, id, message, func(chunk string) {
		acc.WriteString(chunk)
		text := acc.String()
		s.updateIf(epoch, func(st *state) {
			if c := st.find(id); c != nil {
				c.UpdateStreaming(text)
			}
		})
	}, nil)

	if err == nil {
		s.updateIf(epoch, func(st *state) {
			if c := st.find(id); c != nil {
				c.FinishStreaming()
			}
		})
		return nil
	}
	if api.Classify(err) == api.KindUnauthorized {
		return err
	}

	s.logger.Warn("stream failed", zap.String("chat_id", id), zap.Int("received", acc.Len()), zap.Error(err))
	msg := ""
	if api.Classify(err) != api.KindCanceled {
		msg = api.UserMessage(err)
	}
	s.updateIf(epoch, func(st *state) {
		if c := st.find(id); c != nil {
			c.FailStreaming()
		}
		st.setPhase(id, PhaseFailed)
		st.err = msg
	})
	return err
}

// =============================================================================
// TITLE TASK
// =============================================================================

// generateTitle names a new conversation after its first message. Failures
// leave the default title in place.
func (s *Store) generateTitle(ctx context.Context, epoch uint64, id, message string) error {
	title, err := s.backend.GenerateTitle(ctx, message)
	if err == nil {
		title, err = s.backend.UpdateTitle(ctx, id, title)
	}
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			s.forceLogout()
		}
		return fmt.Errorf("title for %s: %w", id, err)
	}
	title = api.CleanTitle(title)

	s.updateIf(epoch, func(st *state) {
		if c := st.find(id); c != nil {
			c.Title = title
		}
	})
	s.touchChats()
	return nil
}
