// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat owns the client-side conversation state.
package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/storage"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// =============================================================================
// FAKE BACKEND
// =============================================================================

type fakeBackend struct {
	mu    sync.Mutex
	calls []string

	chats []api.ChatSummary
	logs  map[string][]api.ChatMessage

	listErr   error
	getErr    error
	deleteErr error
	renameErr error

	createFn func(message, id string) (string, error)
	streamFn func(ctx context.Context, id, message string, onChunk func(string)) error
	titleFn  func(ctx context.Context, message string) (string, error)

	created []string
}

func newFakeBackend(chats ...api.ChatSummary) *fakeBackend {
	return &fakeBackend{chats: chats, logs: make(map[string][]api.ChatMessage)}
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBackend) callCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeBackend) createdMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

func (f *fakeBackend) setLog(id string, msgs ...api.ChatMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[id] = msgs
}

func (f *fakeBackend) ListChats(ctx context.Context) ([]api.ChatSummary, error) {
	f.record("ListChats")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]api.ChatSummary(nil), f.chats...), nil
}

func (f *fakeBackend) GetChat(ctx context.Context, id string) ([]api.ChatMessage, error) {
	f.record("GetChat:" + id)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return append([]api.ChatMessage(nil), f.logs[id]...), nil
}

func (f *fakeBackend) CreateOrAppend(ctx context.Context, message, id string) (string, error) {
	f.record("CreateOrAppend:" + id)
	f.mu.Lock()
	f.created = append(f.created, message)
	fn := f.createFn
	f.mu.Unlock()
	if fn != nil {
		return fn(message, id)
	}
	if id == "" {
		return "new-1", nil
	}
	return id, nil
}

func (f *fakeBackend) GenerateTitle(ctx context.Context, message string) (string, error) {
	f.record("GenerateTitle")
	if f.titleFn != nil {
		return f.titleFn(ctx, message)
	}
	return "Generated", nil
}

func (f *fakeBackend) UpdateTitle(ctx context.Context, id, title string) (string, error) {
	f.record("UpdateTitle:" + id)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renameErr != nil {
		return "", f.renameErr
	}
	return title, nil
}

func (f *fakeBackend) StreamChat(ctx context.Context, id, message string, onChunk func(string), onError func(error)) error {
	f.record("StreamChat:" + id)
	var err error
	if f.streamFn != nil {
		err = f.streamFn(ctx, id, message, onChunk)
	}
	if err != nil && onError != nil {
		onError(err)
	}
	return err
}

func (f *fakeBackend) DeleteChat(ctx context.Context, id string) error {
	f.record("DeleteChat:" + id)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteErr
}

// =============================================================================
// FAKE TOKENS
// =============================================================================

type fakeTokens struct {
	mu      sync.Mutex
	token   string
	cleared int
}

func (f *fakeTokens) Token() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.token != ""
}

func (f *fakeTokens) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
	f.cleared++
	return nil
}

func (f *fakeTokens) clearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared
}

// =============================================================================
// HELPERS
// =============================================================================

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type harness struct {
	store   *Store
	backend *fakeBackend
	tokens  *fakeTokens
	durable *storage.MemoryTier
	events  *recorder
}

func newHarness(t *testing.T, backend *fakeBackend) *harness {
	t.Helper()
	h := &harness{
		backend: backend,
		tokens:  &fakeTokens{token: "tok"},
		durable: storage.NewMemoryTier(),
		events:  &recorder{},
	}
	h.store = New(backend, h.tokens, h.durable, WithClock(func() time.Time { return fixedNow }))
	h.store.Subscribe(func(e Event) {
		h.events.mu.Lock()
		h.events.events = append(h.events.events, e)
		h.events.mu.Unlock()
	})
	t.Cleanup(h.store.Close)
	return h
}

func (h *harness) marker(key string) (string, bool) {
	v, ok, _ := h.durable.Get(key)
	return v, ok
}

func summary(id, title string) api.ChatSummary {
	return api.ChatSummary{ID: api.ID(id), Title: title}
}

func wire(role, content string) api.ChatMessage {
	return api.ChatMessage{Role: role, Content: content}
}

func texts(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Author()) + ":" + m.Text()
	}
	return out
}
