// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	appchat "github.com/jeranaias/parley/internal/chat"
	"github.com/jeranaias/parley/internal/ui/styles"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Core is the part of *chat.Store the view drives.
type Core interface {
	Snapshot() appchat.Snapshot
	Load(ctx context.Context) error
	Select(ctx context.Context, id string) error
	NewConversation()
	Delete(ctx context.Context, id string) error
	Rename(ctx context.Context, id, title string) error
	SetSearchQuery(q string)
	ClearError()
	Send(ctx context.Context, text string) error
	Logout() error
}

// LoginFunc authenticates and stores the session.
type LoginFunc func(ctx context.Context, email, password string) error

// Options configures a Model.
type Options struct {
	Core  Core
	Login LoginFunc

	// LoggedIn starts on the conversation screen instead of the login form.
	LoggedIn bool

	// Server is shown on the login screen.
	Server string

	Theme        *styles.Theme
	Markdown     *styles.Markdown
	SidebarWidth int
	Logger       *zap.Logger
}

// =============================================================================
// STATE
// =============================================================================

type screen int

const (
	screenLogin screen = iota
	screenChat
)

type focus int

const (
	focusInput focus = iota
	focusSidebar
)

// prompt is a one-line question that temporarily replaces the message input.
type prompt int

const (
	promptNone prompt = iota
	promptSearch
	promptRename
	promptDelete
)

const (
	defaultSidebarWidth = 28
	minSidebarWidth     = 16
	headerHeight        = 2
	inputHeight         = 3
	statusHeight        = 1
)

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the parley TUI. It holds no conversation
// state of its own: everything shown comes from the latest store snapshot.
type Model struct {
	core   Core
	login  LoginFunc
	logger *zap.Logger

	theme *styles.Theme
	md    *styles.Markdown
	keys  KeyMap
	help  help.Model

	width        int
	height       int
	sidebarWidth int
	ready        bool

	screen screen
	focus  focus
	prompt prompt
	snap   appchat.Snapshot
	cursor int
	target string // conversation a rename or delete prompt is about
	shown  string // conversation currently in the viewport

	input  textinput.Model
	search textinput.Model
	rename textinput.Model

	email      textinput.Model
	password   textinput.Model
	loginField int
	loginErr   string
	loggingIn  bool
	server     string

	viewport   viewport.Model
	spinner    spinner.Model
	sending    bool
	cancelSend context.CancelFunc
	notice     string
	showHelp   bool
}

// New creates the model.
func New(opts Options) Model {
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme("dark")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sw := opts.SidebarWidth
	if sw <= 0 {
		sw = defaultSidebarWidth
	}

	input := textinput.New()
	input.Placeholder = "Send a message..."
	input.Prompt = "> "
	input.CharLimit = 0

	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "search titles"

	rename := textinput.New()
	rename.Prompt = "Rename: "
	rename.CharLimit = 200

	email := textinput.New()
	email.Prompt = "Email:    "
	email.Placeholder = "you@example.com"

	password := textinput.New()
	password.Prompt = "Password: "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '*'

	sp := spinner.New(
		spinner.WithSpinner(styles.LineSpinner.Bubble()),
		spinner.WithStyle(theme.Spinner),
	)

	m := Model{
		core:         opts.Core,
		login:        opts.Login,
		logger:       logger,
		theme:        theme,
		md:           opts.Markdown,
		keys:         DefaultKeyMap(),
		help:         help.New(),
		sidebarWidth: sw,
		input:        input,
		search:       search,
		rename:       rename,
		email:        email,
		password:     password,
		server:       opts.Server,
		viewport:     viewport.New(0, 0),
		spinner:      sp,
	}
	if opts.LoggedIn {
		m.screen = screenChat
		m.input.Focus()
	} else {
		m.screen = screenLogin
		m.email.Focus()
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	if m.screen == screenChat {
		return tea.Batch(textinput.Blink, m.loadCmd(), m.spinner.Tick)
	}
	return textinput.Blink
}

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case SnapshotMsg:
		m.applySnapshot(msg.Snapshot)
		return m, nil

	case LoggedOutMsg:
		m.toLogin("Signed out. Log in to continue.")
		return m, textinput.Blink

	case loginDoneMsg:
		return m.handleLoginDone(msg)

	case loadDoneMsg:
		if msg.err != nil {
			m.logger.Warn("load failed", zap.Error(msg.err))
		}
		m.applySnapshot(m.core.Snapshot())
		return m, nil

	case sendDoneMsg:
		return m.handleSendDone(msg)

	case opDoneMsg:
		if msg.err != nil {
			m.logger.Warn("operation failed", zap.String("op", msg.op), zap.Error(msg.err))
		}
		if msg.op == "logout" {
			m.toLogin("Logged out.")
			return m, textinput.Blink
		}
		m.applySnapshot(m.core.Snapshot())
		return m, nil

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.screen == screenLogin {
			return m.handleLoginKey(msg)
		}
		return m.handleKey(msg)
	}

	return m.updateFocused(msg)
}

// updateFocused passes msg to whichever text input has focus.
func (m Model) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case m.screen == screenLogin && m.loginField == 0:
		m.email, cmd = m.email.Update(msg)
	case m.screen == screenLogin:
		m.password, cmd = m.password.Update(msg)
	case m.prompt == promptSearch:
		m.search, cmd = m.search.Update(msg)
	case m.prompt == promptRename:
		m.rename, cmd = m.rename.Update(msg)
	case m.focus == focusInput:
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

func (m Model) busy() bool {
	return m.sending || m.loggingIn || m.snap.Loading || m.snap.Phase.Busy()
}

// applySnapshot stores s and keeps the sidebar cursor and viewport in step
// with it.
func (m *Model) applySnapshot(s appchat.Snapshot) {
	m.snap = s
	filtered := s.Filtered()
	if m.focus != focusSidebar {
		for i, c := range filtered {
			if c.ID == s.ActiveID {
				m.cursor = i
				break
			}
		}
	}
	if m.cursor >= len(filtered) {
		m.cursor = len(filtered) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.refreshViewport()
}

// refreshViewport re-renders the active conversation. The view follows the
// bottom while a reply streams, after a switch, or when it was already
// there.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	follow := m.viewport.AtBottom() || m.snap.Phase == appchat.PhaseStreaming || m.shown != m.snap.ActiveID
	m.viewport.SetContent(m.renderConversation(m.viewport.Width))
	m.shown = m.snap.ActiveID
	if follow {
		m.viewport.GotoBottom()
	}
}

// resize lays out the screen for a width x height terminal.
func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.theme.SetSize(width, height)
	m.help.Width = width

	mainWidth := width - m.sidebarColumns()
	helpHeight := len(splitLines(m.helpView()))
	vpHeight := height - headerHeight - inputHeight - statusHeight - helpHeight
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = mainWidth
	m.viewport.Height = vpHeight

	inputWidth := mainWidth - 4 - len(m.input.Prompt) - 1
	if inputWidth < 10 {
		inputWidth = 10
	}
	m.input.Width = inputWidth
	m.rename.Width = inputWidth - len(m.rename.Prompt) + len(m.input.Prompt)
	m.search.Width = m.sidebarColumns() - 6

	loginWidth := width/2 - 8
	if loginWidth < 20 {
		loginWidth = 20
	}
	m.email.Width = loginWidth
	m.password.Width = loginWidth

	m.ready = true
	m.refreshViewport()
}

// sidebarColumns is the sidebar width including its border, or 0 when the
// terminal is too narrow for one.
func (m Model) sidebarColumns() int {
	if m.theme.GetLayoutMode() == styles.LayoutNarrow {
		return 0
	}
	sw := m.sidebarWidth
	if limit := m.width / 3; sw > limit {
		sw = limit
	}
	if sw < minSidebarWidth {
		sw = minSidebarWidth
	}
	return sw
}

// toLogin returns to the login form, dropping everything from the old
// session.
func (m *Model) toLogin(notice string) {
	if m.cancelSend != nil {
		m.cancelSend()
		m.cancelSend = nil
	}
	m.sending = false
	m.loggingIn = false
	m.screen = screenLogin
	m.prompt = promptNone
	m.focus = focusInput
	m.snap = appchat.Snapshot{}
	m.cursor = 0
	m.notice = ""
	m.input.Reset()
	m.password.Reset()
	m.loginErr = notice

	m.input.Blur()
	if m.email.Value() == "" {
		m.loginField = 0
		m.email.Focus()
		m.password.Blur()
	} else {
		m.loginField = 1
		m.email.Blur()
		m.password.Focus()
	}
	m.refreshViewport()
}
