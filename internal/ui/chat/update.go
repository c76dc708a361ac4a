// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/model"
)

// =============================================================================
// COMMAND CREATORS
// =============================================================================

func (m Model) loadCmd() tea.Cmd {
	core := m.core
	return func() tea.Msg {
		return loadDoneMsg{err: core.Load(context.Background())}
	}
}

func (m Model) selectCmd(id string) tea.Cmd {
	core := m.core
	return func() tea.Msg {
		return opDoneMsg{op: "select", err: core.Select(context.Background(), id)}
	}
}

func (m Model) renameCmd(id, title string) tea.Cmd {
	core := m.core
	return func() tea.Msg {
		return opDoneMsg{op: "rename", err: core.Rename(context.Background(), id, title)}
	}
}

func (m Model) deleteCmd(id string) tea.Cmd {
	core := m.core
	return func() tea.Msg {
		return opDoneMsg{op: "delete", err: core.Delete(context.Background(), id)}
	}
}

func (m Model) logoutCmd() tea.Cmd {
	core := m.core
	return func() tea.Msg {
		return opDoneMsg{op: "logout", err: core.Logout()}
	}
}

// =============================================================================
// CONVERSATION SCREEN
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		if m.cancelSend != nil {
			m.cancelSend()
		}
		return m, tea.Quit
	}
	if m.prompt != promptNone {
		return m.handlePromptKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.ToggleHelp):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		m.resize(m.width, m.height)
		return m, nil

	case key.Matches(msg, m.keys.Cancel):
		switch {
		case m.sending && m.cancelSend != nil:
			m.cancelSend()
			m.notice = "Cancelling..."
		case m.snap.Error != "":
			m.core.ClearError()
			m.applySnapshot(m.core.Snapshot())
		case m.focus == focusSidebar:
			m.setFocus(focusInput)
		}
		return m, nil

	case key.Matches(msg, m.keys.Logout):
		return m, m.logoutCmd()

	case key.Matches(msg, m.keys.NewChat):
		m.core.NewConversation()
		m.setFocus(focusInput)
		m.applySnapshot(m.core.Snapshot())
		return m, nil

	case key.Matches(msg, m.keys.Search):
		m.setFocus(focusSidebar)
		m.prompt = promptSearch
		m.search.SetValue(m.snap.SearchQuery)
		m.search.CursorEnd()
		cmd := m.search.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.SwitchFocus):
		if m.focus == focusInput {
			m.setFocus(focusSidebar)
		} else {
			m.setFocus(focusInput)
		}
		return m, nil

	case key.Matches(msg, m.keys.PageUp, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.focus == focusSidebar {
		return m.handleSidebarKey(msg)
	}

	if key.Matches(msg, m.keys.Send) {
		return m.send()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	filtered := m.snap.Filtered()
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(filtered)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Open):
		if conv, ok := m.selected(); ok {
			m.setFocus(focusInput)
			return m, m.selectCmd(conv.ID)
		}
	case key.Matches(msg, m.keys.Rename):
		if conv, ok := m.selected(); ok {
			m.target = conv.ID
			m.prompt = promptRename
			m.rename.SetValue(conv.DisplayTitle())
			m.rename.CursorEnd()
			cmd := m.rename.Focus()
			return m, cmd
		}
	case key.Matches(msg, m.keys.Delete):
		if conv, ok := m.selected(); ok {
			m.target = conv.ID
			m.prompt = promptDelete
		}
	}
	return m, nil
}

// selected returns the conversation under the sidebar cursor.
func (m Model) selected() (model.Conversation, bool) {
	filtered := m.snap.Filtered()
	if m.cursor < 0 || m.cursor >= len(filtered) {
		return model.Conversation{}, false
	}
	return filtered[m.cursor], true
}

func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.prompt {
	case promptSearch:
		switch msg.Type {
		case tea.KeyEnter:
			m.closePrompt()
			return m, nil
		case tea.KeyEsc:
			m.closePrompt()
			m.core.SetSearchQuery("")
			m.applySnapshot(m.core.Snapshot())
			return m, nil
		}
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		m.core.SetSearchQuery(m.search.Value())
		m.cursor = 0
		m.applySnapshot(m.core.Snapshot())
		return m, cmd

	case promptRename:
		switch msg.Type {
		case tea.KeyEnter:
			id, title := m.target, m.rename.Value()
			m.closePrompt()
			return m, m.renameCmd(id, title)
		case tea.KeyEsc:
			m.closePrompt()
			return m, nil
		}
		var cmd tea.Cmd
		m.rename, cmd = m.rename.Update(msg)
		return m, cmd

	case promptDelete:
		switch {
		case key.Matches(msg, m.keys.ConfirmYes):
			id := m.target
			m.closePrompt()
			return m, m.deleteCmd(id)
		case key.Matches(msg, m.keys.ConfirmNo):
			m.closePrompt()
		}
	}
	return m, nil
}

func (m *Model) closePrompt() {
	m.prompt = promptNone
	m.target = ""
	m.search.Blur()
	m.rename.Blur()
	m.rename.Reset()
}

func (m *Model) setFocus(f focus) {
	m.focus = f
	if f == focusInput {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

// send starts sending the input text. One send runs at a time; the reply
// streams in through snapshots.
func (m Model) send() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if m.sending {
		m.notice = "Wait for the current reply to finish."
		return m, nil
	}

	m.input.Reset()
	m.notice = ""
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelSend = cancel
	m.sending = true

	core := m.core
	return m, tea.Batch(
		func() tea.Msg {
			defer cancel()
			return sendDoneMsg{err: core.Send(ctx, text)}
		},
		m.spinner.Tick,
	)
}

func (m Model) handleSendDone(msg sendDoneMsg) (tea.Model, tea.Cmd) {
	m.sending = false
	m.cancelSend = nil
	switch api.Classify(msg.err) {
	case api.KindNone:
		m.notice = ""
	case api.KindCanceled:
		m.notice = "Cancelled."
	case api.KindUnauthorized:
		// The store has already logged out; LoggedOutMsg follows.
	default:
		m.logger.Warn("send failed", zap.Error(msg.err))
	}
	if m.screen == screenChat {
		m.applySnapshot(m.core.Snapshot())
	}
	return m, nil
}

// =============================================================================
// LOGIN SCREEN
// =============================================================================

func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	if m.loggingIn {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.NextField):
		cmd := m.switchLoginField()
		return m, cmd

	case msg.Type == tea.KeyEnter:
		email := strings.TrimSpace(m.email.Value())
		if m.loginField == 0 && email != "" && m.password.Value() == "" {
			cmd := m.switchLoginField()
			return m, cmd
		}
		if email == "" || m.password.Value() == "" {
			m.loginErr = "Email and password are required."
			return m, nil
		}
		m.loggingIn = true
		m.loginErr = ""
		login, password := m.login, m.password.Value()
		return m, tea.Batch(
			func() tea.Msg {
				return loginDoneMsg{err: login(context.Background(), email, password)}
			},
			m.spinner.Tick,
		)
	}

	return m.updateFocused(msg)
}

func (m *Model) switchLoginField() tea.Cmd {
	if m.loginField == 0 {
		m.loginField = 1
		m.email.Blur()
		return m.password.Focus()
	}
	m.loginField = 0
	m.password.Blur()
	return m.email.Focus()
}

func (m Model) handleLoginDone(msg loginDoneMsg) (tea.Model, tea.Cmd) {
	m.loggingIn = false
	if msg.err != nil {
		m.loginErr = api.UserMessage(msg.err)
		m.password.Reset()
		m.loginField = 1
		m.email.Blur()
		cmd := m.password.Focus()
		return m, cmd
	}

	m.password.Reset()
	m.password.Blur()
	m.email.Blur()
	m.loginErr = ""
	m.screen = screenChat
	m.setFocus(focusInput)
	return m, tea.Batch(textinput.Blink, m.loadCmd(), m.spinner.Tick)
}
