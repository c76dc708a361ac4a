// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat owns the client-side conversation state.
package chat

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/storage"
)

// DefaultTitleTimeout bounds the background title task.
const DefaultTitleTimeout = 60 * time.Second

// Backend is the subset of *api.Client the store calls.
type Backend interface {
	ListChats(ctx context.Context) ([]api.ChatSummary, error)
	GetChat(ctx context.Context, id string) ([]api.ChatMessage, error)
	CreateOrAppend(ctx context.Context, message, id string) (string, error)
	GenerateTitle(ctx context.Context, message string) (string, error)
	UpdateTitle(ctx context.Context, id, title string) (string, error)
	StreamChat(ctx context.Context, id, message string, onChunk func(string), onError func(error)) error
	DeleteChat(ctx context.Context, id string) error
}

// =============================================================================
// STORE
// =============================================================================

// Store is the single source of truth for what the user sees.
//
// Subscribers are called synchronously, in order, after each change. They
// may call Snapshot but must not call operations that change state.
type Store struct {
	backend Backend
	tokens  api.TokenSource
	durable storage.Tier
	logger  *zap.Logger
	now     func() time.Time

	titleTimeout time.Duration

	// pubMu orders publication so subscribers see snapshots in commit order.
	pubMu sync.Mutex

	mu     sync.Mutex
	st     state
	subs   []subscriber
	nextID int

	sends *keyedMutex
	tasks *taskGroup
}

type subscriber struct {
	id int
	fn func(Event)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for message timestamps and
// markers.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTitleTimeout bounds each background title task.
func WithTitleTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.titleTimeout = d
	}
}

// New creates a Store. durable may be nil, in which case markers are not
// persisted.
func New(backend Backend, tokens api.TokenSource, durable storage.Tier, opts ...Option) *Store {
	s := &Store{
		backend:      backend,
		tokens:       tokens,
		durable:      durable,
		logger:       zap.NewNop(),
		now:          time.Now,
		titleTimeout: DefaultTitleTimeout,
		st:           newState(),
		sends:        newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tasks = newTaskGroup(2, s.titleTimeout, s.logger)
	return s
}

// Close cancels background work and waits for it.
func (s *Store) Close() {
	s.tasks.Stop()
}

// WaitTasks blocks until background tasks started so far have finished.
func (s *Store) WaitTasks() {
	s.tasks.Wait()
}

// =============================================================================
// OBSERVATION
// =============================================================================

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.snapshot()
}

// Subscribe registers fn for every subsequent event. The returned func
// unregisters it.
func (s *Store) Subscribe(fn func(Event)) (cancel func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// commit applies fn and publishes the result. fn returns false to abandon
// the change without publishing.
func (s *Store) commit(kind EventKind, fn func(st *state) bool) bool {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	if !fn(&s.st) {
		s.mu.Unlock()
		return false
	}
	ev := Event{Kind: kind, Snapshot: s.st.snapshot()}
	subs := append([]subscriber(nil), s.subs...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(ev)
	}
	return true
}

// update applies fn unconditionally.
func (s *Store) update(fn func(st *state)) {
	s.commit(EventChanged, func(st *state) bool {
		fn(st)
		return true
	})
}

// updateIf applies fn only if no reset happened since epoch was read.
func (s *Store) updateIf(epoch uint64, fn func(st *state)) bool {
	return s.commit(EventChanged, func(st *state) bool {
		if st.epoch != epoch {
			return false
		}
		fn(st)
		return true
	})
}

func (s *Store) epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.epoch
}

// =============================================================================
// SESSION
// =============================================================================

// Reset discards all in-memory state.
func (s *Store) Reset() {
	s.reset(EventChanged)
}

// Logout clears credentials, resets the store and publishes EventLoggedOut.
func (s *Store) Logout() error {
	err := s.tokens.Clear()
	if err != nil {
		s.logger.Warn("failed to clear credentials on logout", zap.Error(err))
	}
	s.removeMarker(storage.KeyLastChatID)
	s.reset(EventLoggedOut)
	return err
}

// EndSession resets the store and publishes EventLoggedOut without touching
// credentials. It is the reaction to a logout performed elsewhere.
func (s *Store) EndSession() {
	s.reset(EventLoggedOut)
}

func (s *Store) reset(kind EventKind) {
	s.commit(kind, func(st *state) bool {
		epoch := st.epoch
		*st = newState()
		st.epoch = epoch + 1
		return true
	})
}

// forceLogout is the reaction to an unauthorized response. The transport
// has normally cleared the tokens already.
func (s *Store) forceLogout() {
	if _, ok := s.tokens.Token(); ok {
		if err := s.tokens.Clear(); err != nil {
			s.logger.Warn("failed to clear credentials", zap.Error(err))
		}
	}
	s.logger.Info("session rejected by server, logging out")
	s.reset(EventLoggedOut)
}

// fail records err for the user and returns it. Unauthorized errors force a
// logout; cancellations are not shown.
func (s *Store) fail(epoch uint64, err error, fields ...zap.Field) error {
	switch api.Classify(err) {
	case api.KindNone:
		return nil
	case api.KindUnauthorized:
		s.forceLogout()
	case api.KindCanceled:
		s.logger.Debug("operation canceled", append(fields, zap.Error(err))...)
	default:
		s.logger.Warn("operation failed", append(fields, zap.Error(err))...)
		msg := api.UserMessage(err)
		s.updateIf(epoch, func(st *state) {
			st.err = msg
			st.loading = false
		})
	}
	return err
}

// =============================================================================
// MARKERS
// =============================================================================

func (s *Store) setMarker(key, value string) {
	if s.durable == nil {
		return
	}
	if err := s.durable.Set(key, value); err != nil {
		s.logger.Warn("failed to write marker", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) removeMarker(key string) {
	if s.durable == nil {
		return
	}
	if err := s.durable.Remove(key); err != nil {
		s.logger.Warn("failed to remove marker", zap.String("key", key), zap.Error(err))
	}
}

// touchChats tells other instances the conversation list changed.
func (s *Store) touchChats() {
	s.setMarker(storage.KeyChatsUpdatedAt, strconv.FormatInt(s.now().UnixMilli(), 10))
}

func (s *Store) lastChatID() string {
	if s.durable == nil {
		return ""
	}
	id, ok, err := s.durable.Get(storage.KeyLastChatID)
	if err != nil {
		s.logger.Warn("failed to read last chat id", zap.Error(err))
		return ""
	}
	if !ok {
		return ""
	}
	return id
}
