// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	appchat "github.com/jeranaias/parley/internal/chat"
	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/util"
)

const streamingCursor = "▌"

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Starting parley..."
	}
	if m.screen == screenLogin {
		return m.viewLogin()
	}
	return m.viewChat()
}

// =============================================================================
// LOGIN
// =============================================================================

func (m Model) viewLogin() string {
	var b strings.Builder
	b.WriteString(m.theme.LoginTitle.Render("parley"))
	b.WriteString("\n")
	if m.server != "" {
		b.WriteString(m.theme.Dim.Render("Sign in to " + m.server))
		b.WriteString("\n\n")
	}
	b.WriteString(m.email.View())
	b.WriteString("\n")
	b.WriteString(m.password.View())
	b.WriteString("\n\n")

	switch {
	case m.loggingIn:
		b.WriteString(m.spinner.View() + " Signing in...")
	case m.loginErr != "":
		b.WriteString(m.theme.ErrorBar.Render(m.loginErr))
	default:
		b.WriteString(" ")
	}
	b.WriteString("\n\n")
	b.WriteString(m.theme.Help.Render("tab: switch field  enter: sign in  C-c: quit"))

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		m.theme.LoginBox.Render(b.String()))
}

// =============================================================================
// CONVERSATION SCREEN
// =============================================================================

func (m Model) viewChat() string {
	mainWidth := m.width - m.sidebarColumns()
	main := lipgloss.JoinVertical(lipgloss.Left,
		m.viewHeader(mainWidth),
		m.viewport.View(),
		m.viewInput(mainWidth),
	)

	body := main
	if sw := m.sidebarColumns(); sw > 0 {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.viewSidebar(sw, lipgloss.Height(main)), main)
	}

	parts := []string{body, m.viewStatus()}
	if hv := m.helpView(); hv != "" {
		parts = append(parts, hv)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) viewHeader(width int) string {
	title := "New conversation"
	if conv, ok := m.snap.Active(); ok {
		title = conv.DisplayTitle()
	}
	return m.theme.Header.Width(width).Render(util.TruncateWidth(title, width))
}

func (m Model) viewInput(width int) string {
	style := m.theme.InputContainer
	if m.focus == focusInput || m.prompt == promptRename || m.prompt == promptDelete {
		style = m.theme.InputFocused
	}
	style = style.Width(width - 2)

	switch m.prompt {
	case promptRename:
		return style.Render(m.rename.View())
	case promptDelete:
		title := "this conversation"
		if conv, ok := m.snap.Find(m.target); ok {
			title = fmt.Sprintf("%q", conv.DisplayTitle())
		}
		q := util.TruncateWidth("Delete "+title+"? (y/n)", width-4)
		return style.Render(m.theme.DialogTitle.Render(q))
	}
	return style.Render(m.input.View())
}

// viewStatus shows the error, the activity or the latest notice, in that
// order of precedence.
func (m Model) viewStatus() string {
	var left string
	switch {
	case m.snap.Error != "":
		left = m.theme.ErrorBar.Render("Error: "+m.snap.Error) + m.theme.Dim.Render("  (esc to dismiss)")
	case m.busy():
		left = m.spinner.View() + " " + m.activity()
	default:
		left = m.notice
	}
	return m.theme.StatusBar.Width(m.width).Render(left)
}

func (m Model) activity() string {
	switch {
	case m.snap.Loading:
		return "Loading..."
	case m.snap.Phase == appchat.PhaseStreaming:
		return "Receiving reply... (esc to cancel)"
	case m.snap.Phase == appchat.PhaseFailed:
		return "Reloading conversation..."
	default:
		return "Sending..."
	}
}

func (m Model) helpView() string {
	if m.focus == focusSidebar && !m.showHelp {
		return m.help.View(sidebarKeys(m.keys))
	}
	return m.help.View(m.keys)
}

// =============================================================================
// SIDEBAR
// =============================================================================

func (m Model) viewSidebar(width, height int) string {
	inner := width - m.theme.Sidebar.GetHorizontalFrameSize()
	if inner < 4 {
		inner = 4
	}

	var lines []string
	title := m.theme.SidebarTitle.Render("Chats")
	title += m.theme.Dim.Render(fmt.Sprintf(" (%d)", len(m.snap.Conversations)))
	lines = append(lines, title)

	switch {
	case m.prompt == promptSearch:
		lines = append(lines, m.search.View())
	case strings.TrimSpace(m.snap.SearchQuery) != "":
		lines = append(lines, m.theme.SearchPrompt.Render(util.TruncateWidth("/ "+m.snap.SearchQuery, inner)))
	default:
		lines = append(lines, "")
	}

	filtered := m.snap.Filtered()
	if len(filtered) == 0 {
		empty := "No chats yet"
		if strings.TrimSpace(m.snap.SearchQuery) != "" {
			empty = "No matches"
		}
		lines = append(lines, m.theme.SidebarEmpty.Render(empty))
	}

	rows := height - len(lines)
	if rows < 1 {
		rows = 1
	}
	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	for i := start; i < len(filtered) && i < start+rows; i++ {
		lines = append(lines, m.sidebarRow(filtered[i], i, inner))
	}

	return m.theme.Sidebar.
		Width(width - m.theme.Sidebar.GetBorderRightSize()).
		Height(height).
		Render(strings.Join(lines, "\n"))
}

func (m Model) sidebarRow(c model.Conversation, i, width int) string {
	marker := "  "
	if i == m.cursor && m.focus == focusSidebar {
		marker = m.theme.SidebarCursor.Render("> ")
	}
	busy := " "
	if m.snap.PhaseOf(c.ID).Busy() {
		busy = m.theme.SidebarBusy.Render("*")
	}

	text := util.PadRight(c.DisplayTitle(), width-3)
	if c.ID == m.snap.ActiveID {
		text = m.theme.SidebarActive.Render(text)
	} else {
		text = m.theme.SidebarItem.Render(text)
	}
	return marker + text + busy
}

// =============================================================================
// CONVERSATION
// =============================================================================

// renderConversation renders the active conversation for the viewport.
func (m Model) renderConversation(width int) string {
	conv, ok := m.snap.Active()
	if !ok {
		if m.sending {
			return m.theme.Empty.Render("Starting a new conversation...")
		}
		return m.theme.Empty.Render("Type a message to start a new conversation.")
	}
	if !conv.Loaded() {
		if m.snap.Loading {
			return m.theme.Empty.Render("Loading messages...")
		}
		return m.theme.Empty.Render("No messages yet.")
	}

	blocks := make([]string, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		blocks = append(blocks, m.renderMessage(msg, width))
	}
	return strings.Join(blocks, "\n\n")
}

func (m Model) renderMessage(msg model.Message, width int) string {
	bodyWidth := width - 2
	if bodyWidth < 10 {
		bodyWidth = 10
	}

	if msg.Author() == model.RoleUser {
		label := m.theme.UserLabel.Render(msg.Author().DisplayName())
		return label + "\n" + m.theme.UserBubble.Width(bodyWidth).Render(msg.Text())
	}

	label := m.theme.AssistantLabel.Render(msg.Author().DisplayName())
	var body string
	switch {
	case msg.Streaming():
		body = m.theme.AssistantBubble.Width(bodyWidth).Render(msg.Text() + m.theme.StreamingCursor.Render(streamingCursor))
	case msg.Text() == model.StreamFailedContent:
		body = m.theme.AssistantBubble.Render(m.theme.Failed.Render(msg.Text()))
	case m.md == nil:
		body = m.theme.AssistantBubble.Width(bodyWidth).Render(msg.Text())
	default:
		body = m.theme.AssistantBubble.Render(m.md.Render(msg.Text(), bodyWidth-2))
	}
	return label + "\n" + body
}

// splitLines splits rendered output into lines; "" has none.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
