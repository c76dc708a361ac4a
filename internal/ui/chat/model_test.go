// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/parley/internal/api"
	appchat "github.com/jeranaias/parley/internal/chat"
	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/ui/styles"
)

// =============================================================================
// FAKE CORE
// =============================================================================

type fakeCore struct {
	mu    sync.Mutex
	snap  appchat.Snapshot
	calls []string

	sendFn  func(ctx context.Context, text string) error
	started chan struct{}
}

func newFakeCore(titles ...string) *fakeCore {
	f := &fakeCore{started: make(chan struct{}, 1)}
	for i, title := range titles {
		f.snap.Conversations = append(f.snap.Conversations, model.Conversation{
			ID:    "c" + string(rune('1'+i)),
			Title: title,
		})
	}
	return f
}

func (f *fakeCore) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeCore) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCore) Snapshot() appchat.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeCore) Load(ctx context.Context) error {
	f.record("load")
	return nil
}

func (f *fakeCore) Select(ctx context.Context, id string) error {
	f.record("select:" + id)
	f.mu.Lock()
	f.snap.ActiveID = id
	f.mu.Unlock()
	return nil
}

func (f *fakeCore) NewConversation() {
	f.record("new")
	f.mu.Lock()
	f.snap.ActiveID = ""
	f.snap.SearchQuery = ""
	f.mu.Unlock()
}

func (f *fakeCore) Delete(ctx context.Context, id string) error {
	f.record("delete:" + id)
	return nil
}

func (f *fakeCore) Rename(ctx context.Context, id, title string) error {
	f.record("rename:" + id + ":" + title)
	return nil
}

func (f *fakeCore) SetSearchQuery(q string) {
	f.record("search:" + q)
	f.mu.Lock()
	f.snap.SearchQuery = q
	f.mu.Unlock()
}

func (f *fakeCore) ClearError() {
	f.record("clear-error")
	f.mu.Lock()
	f.snap.Error = ""
	f.mu.Unlock()
}

func (f *fakeCore) Send(ctx context.Context, text string) error {
	f.record("send:" + text)
	f.started <- struct{}{}
	if f.sendFn != nil {
		return f.sendFn(ctx, text)
	}
	return nil
}

func (f *fakeCore) Logout() error {
	f.record("logout")
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func newTestModel(core *fakeCore, loggedIn bool) Model {
	m := New(Options{
		Core:     core,
		LoggedIn: loggedIn,
		Server:   "https://chat.example.com",
		Theme:    styles.NewTheme("dark"),
		Login: func(ctx context.Context, email, password string) error {
			if password != "secret" {
				return &api.APIError{Status: 400, Message: "Incorrect email or password"}
			}
			core.record("login:" + email)
			return nil
		},
	})
	return update(m, tea.WindowSizeMsg{Width: 120, Height: 40})
}

func update(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func press(m Model, msg tea.KeyMsg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func typeText(m Model, text string) Model {
	next, _ := press(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return next
}

func keyOf(t tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: t}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// find runs cmd (and any batch it expands to) and returns the first message
// of type T it produces.
func find[T tea.Msg](t *testing.T, cmd tea.Cmd) T {
	t.Helper()
	require.NotNil(t, cmd)

	found := make(chan T, 1)
	var run func(c tea.Cmd)
	run = func(c tea.Cmd) {
		if c == nil {
			return
		}
		msg := c()
		if batch, ok := msg.(tea.BatchMsg); ok {
			for _, sub := range batch {
				go run(sub)
			}
			return
		}
		if v, ok := msg.(T); ok {
			select {
			case found <- v:
			default:
			}
		}
	}
	go run(cmd)

	select {
	case v := <-found:
		return v
	case <-time.After(3 * time.Second):
		var zero T
		t.Fatalf("no %T produced", zero)
		return zero
	}
}

// =============================================================================
// LOGIN
// =============================================================================

func TestLogin_SubmitsAndLoads(t *testing.T) {
	core := newFakeCore()
	m := newTestModel(core, false)
	assert.Contains(t, m.View(), "Sign in to https://chat.example.com")

	m = typeText(m, "me@example.com")
	m, _ = press(m, keyOf(tea.KeyEnter))
	assert.Equal(t, 1, m.loginField, "enter on the email field moves to password")

	m = typeText(m, "secret")
	m, cmd := press(m, keyOf(tea.KeyEnter))
	assert.True(t, m.loggingIn)

	done := find[loginDoneMsg](t, cmd)
	require.NoError(t, done.err)

	next, cmd := m.Update(done)
	m = next.(Model)
	assert.Equal(t, screenChat, m.screen)
	assert.Empty(t, m.password.Value())

	find[loadDoneMsg](t, cmd)
	assert.Equal(t, []string{"login:me@example.com", "load"}, core.recorded())
}

func TestLogin_ShowsBackendError(t *testing.T) {
	m := newTestModel(newFakeCore(), false)
	m = typeText(m, "me@example.com")
	m, _ = press(m, keyOf(tea.KeyTab))
	m = typeText(m, "wrong")
	m, cmd := press(m, keyOf(tea.KeyEnter))

	m = update(m, find[loginDoneMsg](t, cmd))
	assert.Equal(t, screenLogin, m.screen)
	assert.Equal(t, "Incorrect email or password", m.loginErr)
	assert.Empty(t, m.password.Value())
	assert.Contains(t, m.View(), "Incorrect email or password")
}

func TestLogin_RequiresBothFields(t *testing.T) {
	m := newTestModel(newFakeCore(), false)
	m, cmd := press(m, keyOf(tea.KeyEnter))
	assert.Nil(t, cmd)
	assert.Equal(t, "Email and password are required.", m.loginErr)
}

func TestLoggedOutMsg_ReturnsToLogin(t *testing.T) {
	core := newFakeCore("Alpha")
	m := newTestModel(core, false)
	m = typeText(m, "me@example.com")
	m.screen = screenChat
	m = update(m, SnapshotMsg{Snapshot: core.Snapshot()})

	m = update(m, LoggedOutMsg{})
	assert.Equal(t, screenLogin, m.screen)
	assert.Empty(t, m.snap.Conversations)
	assert.Equal(t, 1, m.loginField, "email is kept, password is asked for")
	assert.Equal(t, "me@example.com", m.email.Value())
}

// =============================================================================
// SENDING
// =============================================================================

func TestSend_RunsStoreSend(t *testing.T) {
	core := newFakeCore()
	m := newTestModel(core, true)

	m = typeText(m, "  hello there ")
	m, cmd := press(m, keyOf(tea.KeyEnter))
	assert.True(t, m.sending)
	assert.Empty(t, m.input.Value())

	done := find[sendDoneMsg](t, cmd)
	require.NoError(t, done.err)
	m = update(m, done)
	assert.False(t, m.sending)
	assert.Contains(t, core.recorded(), "send:hello there")
}

func TestSend_IgnoresBlankInput(t *testing.T) {
	core := newFakeCore()
	m := newTestModel(core, true)
	m = typeText(m, "   ")
	m, cmd := press(m, keyOf(tea.KeyEnter))
	assert.Nil(t, cmd)
	assert.False(t, m.sending)
}

func TestSend_EscCancelsInFlight(t *testing.T) {
	core := newFakeCore()
	core.sendFn = func(ctx context.Context, text string) error {
		<-ctx.Done()
		return ctx.Err()
	}
	m := newTestModel(core, true)
	m = typeText(m, "long question")
	m, cmd := press(m, keyOf(tea.KeyEnter))

	result := make(chan sendDoneMsg, 1)
	go func() { result <- find[sendDoneMsg](t, cmd) }()
	<-core.started

	m, _ = press(m, keyOf(tea.KeyEsc))
	assert.Equal(t, "Cancelling...", m.notice)

	done := <-result
	assert.True(t, errors.Is(done.err, context.Canceled))
	m = update(m, done)
	assert.False(t, m.sending)
	assert.Equal(t, "Cancelled.", m.notice)
}

func TestSend_OneAtATime(t *testing.T) {
	core := newFakeCore()
	m := newTestModel(core, true)
	m.sending = true
	m = typeText(m, "again")
	m, cmd := press(m, keyOf(tea.KeyEnter))
	assert.Nil(t, cmd)
	assert.Equal(t, "again", m.input.Value())
	assert.Equal(t, "Wait for the current reply to finish.", m.notice)
}

// =============================================================================
// SIDEBAR
// =============================================================================

func TestSidebar_SelectConversation(t *testing.T) {
	core := newFakeCore("Alpha", "beta", "Gamma")
	m := newTestModel(core, true)
	m = update(m, SnapshotMsg{Snapshot: core.Snapshot()})

	m, _ = press(m, keyOf(tea.KeyTab))
	assert.Equal(t, focusSidebar, m.focus)
	m, _ = press(m, keyOf(tea.KeyDown))
	m, _ = press(m, runes("j"))
	m, _ = press(m, keyOf(tea.KeyDown))
	assert.Equal(t, 2, m.cursor, "cursor stops at the last row")

	m, _ = press(m, keyOf(tea.KeyUp))
	m, cmd := press(m, keyOf(tea.KeyEnter))
	assert.Equal(t, focusInput, m.focus)

	m = update(m, find[opDoneMsg](t, cmd))
	assert.Equal(t, "c2", m.snap.ActiveID)
	assert.Contains(t, core.recorded(), "select:c2")
}

func TestSidebar_Rename(t *testing.T) {
	core := newFakeCore("Alpha")
	m := newTestModel(core, true)
	m = update(m, SnapshotMsg{Snapshot: core.Snapshot()})

	m, _ = press(m, keyOf(tea.KeyTab))
	m, _ = press(m, runes("r"))
	require.Equal(t, promptRename, m.prompt)
	assert.Equal(t, "Alpha", m.rename.Value())

	m = typeText(m, "!")
	m, cmd := press(m, keyOf(tea.KeyEnter))
	assert.Equal(t, promptNone, m.prompt)

	op := find[opDoneMsg](t, cmd)
	assert.Equal(t, "rename", op.op)
	assert.Contains(t, core.recorded(), "rename:c1:Alpha!")
}

func TestSidebar_DeleteAsksFirst(t *testing.T) {
	core := newFakeCore("Alpha", "beta")
	m := newTestModel(core, true)
	m = update(m, SnapshotMsg{Snapshot: core.Snapshot()})
	m, _ = press(m, keyOf(tea.KeyTab))

	m, _ = press(m, runes("d"))
	require.Equal(t, promptDelete, m.prompt)
	assert.Contains(t, m.View(), `Delete "Alpha"? (y/n)`)

	m, cmd := press(m, runes("n"))
	assert.Nil(t, cmd)
	assert.Equal(t, promptNone, m.prompt)

	m, _ = press(m, runes("d"))
	_, cmd = press(m, runes("y"))
	find[opDoneMsg](t, cmd)
	assert.Contains(t, core.recorded(), "delete:c1")
}

func TestSearch_FiltersAsYouType(t *testing.T) {
	core := newFakeCore("Alpha", "beta", "Gamma")
	m := newTestModel(core, true)
	m = update(m, SnapshotMsg{Snapshot: core.Snapshot()})

	m, _ = press(m, keyOf(tea.KeyCtrlF))
	require.Equal(t, promptSearch, m.prompt)
	m, _ = press(m, runes("B"))
	assert.Equal(t, "B", m.snap.SearchQuery)
	require.Len(t, m.snap.Filtered(), 1)
	assert.Equal(t, "beta", m.snap.Filtered()[0].Title)

	m, _ = press(m, keyOf(tea.KeyEnter))
	assert.Equal(t, promptNone, m.prompt)
	assert.Equal(t, "B", m.snap.SearchQuery, "enter keeps the filter")

	m, _ = press(m, keyOf(tea.KeyCtrlF))
	m, _ = press(m, keyOf(tea.KeyEsc))
	assert.Empty(t, m.snap.SearchQuery)
	assert.Len(t, m.snap.Filtered(), 3)
}

func TestNewChat_ClearsActive(t *testing.T) {
	core := newFakeCore("Alpha")
	core.snap.ActiveID = "c1"
	m := newTestModel(core, true)
	m = update(m, SnapshotMsg{Snapshot: core.Snapshot()})

	m, _ = press(m, keyOf(tea.KeyCtrlN))
	assert.Empty(t, m.snap.ActiveID)
	assert.Contains(t, m.View(), "Type a message to start a new conversation.")
}

func TestLogoutKey(t *testing.T) {
	core := newFakeCore("Alpha")
	m := newTestModel(core, true)

	m, cmd := press(m, keyOf(tea.KeyCtrlL))
	m = update(m, find[opDoneMsg](t, cmd))
	assert.Equal(t, screenLogin, m.screen)
	assert.Equal(t, "Logged out.", m.loginErr)
	assert.Contains(t, core.recorded(), "logout")
}

func TestQuit(t *testing.T) {
	m := newTestModel(newFakeCore(), true)
	_, cmd := press(m, keyOf(tea.KeyCtrlC))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

// =============================================================================
// RENDERING
// =============================================================================

func TestView_StreamingConversation(t *testing.T) {
	core := newFakeCore()
	m := newTestModel(core, true)
	m = update(m, SnapshotMsg{Snapshot: appchat.Snapshot{
		Conversations: []model.Conversation{{
			ID:    "c1",
			Title: "Weekend plans",
			Messages: []model.Message{
				model.Final{Role: model.RoleUser, Content: "Any ideas for Saturday?"},
				model.InProgress{Accumulated: "How about a hike"},
			},
		}},
		ActiveID: "c1",
		Phase:    appchat.PhaseStreaming,
	}})

	view := m.View()
	assert.Contains(t, view, "Weekend plans")
	assert.Contains(t, view, "Any ideas for Saturday?")
	assert.Contains(t, view, "How about a hike")
	assert.Contains(t, view, "Receiving reply")
	assert.Contains(t, view, "Chats")
}

func TestView_FailedReply(t *testing.T) {
	m := newTestModel(newFakeCore(), true)
	m = update(m, SnapshotMsg{Snapshot: appchat.Snapshot{
		Conversations: []model.Conversation{{
			ID:       "c1",
			Messages: []model.Message{model.Final{Role: model.RoleAssistant, Content: model.StreamFailedContent}},
		}},
		ActiveID: "c1",
	}})
	assert.Contains(t, m.View(), model.StreamFailedContent)
	assert.Contains(t, m.View(), model.DefaultTitle)
}

func TestView_ErrorIsDismissable(t *testing.T) {
	core := newFakeCore()
	core.snap.Error = "Failed to load chats"
	m := newTestModel(core, true)
	m = update(m, SnapshotMsg{Snapshot: core.Snapshot()})
	assert.Contains(t, m.View(), "Error: Failed to load chats")

	m, _ = press(m, keyOf(tea.KeyEsc))
	assert.NotContains(t, m.View(), "Failed to load chats")
	assert.Contains(t, core.recorded(), "clear-error")
}

func TestView_NarrowHidesSidebar(t *testing.T) {
	core := newFakeCore("Alpha")
	m := newTestModel(core, true)
	m = update(m, SnapshotMsg{Snapshot: core.Snapshot()})
	assert.Greater(t, m.sidebarColumns(), 0)

	m = update(m, tea.WindowSizeMsg{Width: 50, Height: 20})
	assert.Equal(t, 0, m.sidebarColumns())
	assert.False(t, strings.Contains(m.View(), "Chats ("))
}
