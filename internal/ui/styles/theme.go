// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the parley TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// SIDEBAR
	// ==========================================================================

	Sidebar       lipgloss.Style
	SidebarTitle  lipgloss.Style
	SidebarItem   lipgloss.Style
	SidebarActive lipgloss.Style
	SidebarCursor lipgloss.Style
	SidebarBusy   lipgloss.Style
	SidebarEmpty  lipgloss.Style
	SearchPrompt  lipgloss.Style

	// ==========================================================================
	// CONVERSATION
	// ==========================================================================

	Header          lipgloss.Style
	UserLabel       lipgloss.Style
	AssistantLabel  lipgloss.Style
	UserBubble      lipgloss.Style
	AssistantBubble lipgloss.Style
	StreamingCursor lipgloss.Style
	Failed          lipgloss.Style
	Empty           lipgloss.Style

	// ==========================================================================
	// INPUT, STATUS AND OVERLAYS
	// ==========================================================================

	InputContainer lipgloss.Style
	InputFocused   lipgloss.Style
	StatusBar      lipgloss.Style
	ErrorBar       lipgloss.Style
	Spinner        lipgloss.Style
	Dialog         lipgloss.Style
	DialogTitle    lipgloss.Style
	LoginBox       lipgloss.Style
	LoginTitle     lipgloss.Style
	Help           lipgloss.Style
	Dim            lipgloss.Style
}

// NewTheme creates a theme for mode "dark", "light" or "auto". Auto asks the
// terminal for its background.
func NewTheme(mode string) *Theme {
	isDark := true
	switch mode {
	case "light":
		isDark = false
	case "auto":
		isDark = termenv.HasDarkBackground()
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{
		IsDark:       isDark,
		ColorProfile: termenv.ColorProfile(),
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Sidebar = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderRight(true).
		BorderForeground(OverlayDim).
		Padding(0, 1)
	t.SidebarTitle = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.SidebarItem = lipgloss.NewStyle().Foreground(TextSecondary)
	t.SidebarActive = lipgloss.NewStyle().Bold(true).Foreground(TextPrimary).Background(SelectionBg)
	t.SidebarCursor = lipgloss.NewStyle().Foreground(Cyan)
	t.SidebarBusy = lipgloss.NewStyle().Foreground(Amber)
	t.SidebarEmpty = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)
	t.SearchPrompt = lipgloss.NewStyle().Foreground(Cyan)

	t.Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(OverlayDim)
	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(UserBubbleBorder)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(AssistantBubbleBorder)
	t.UserBubble = lipgloss.NewStyle().
		Foreground(UserBubbleFg).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(UserBubbleBorder).
		PaddingLeft(1)
	t.AssistantBubble = lipgloss.NewStyle().
		Foreground(AssistantBubbleFg).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(AssistantBubbleBorder).
		PaddingLeft(1)
	t.StreamingCursor = lipgloss.NewStyle().Foreground(Cyan).Blink(true)
	t.Failed = lipgloss.NewStyle().Foreground(Rose).Italic(true)
	t.Empty = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)

	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(OverlayDim).
		Padding(0, 1)
	t.InputFocused = t.InputContainer.Copy().BorderForeground(Cyan)
	t.StatusBar = lipgloss.NewStyle().Foreground(TextMuted).Background(SurfaceDim)
	t.ErrorBar = lipgloss.NewStyle().Bold(true).Foreground(Rose)
	t.Spinner = lipgloss.NewStyle().Foreground(Amber)
	t.Dialog = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Purple).
		Padding(1, 2)
	t.DialogTitle = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.LoginBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Cyan).
		Padding(1, 3)
	t.LoginTitle = lipgloss.NewStyle().Bold(true).Foreground(Cyan).MarginBottom(1)
	t.Help = lipgloss.NewStyle().Foreground(TextMuted)
	t.Dim = lipgloss.NewStyle().Foreground(TextMuted)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// GetLayoutMode returns the current layout mode based on width.
func (t *Theme) GetLayoutMode() LayoutMode {
	if t.Width < 60 {
		return LayoutNarrow
	}
	if t.Width < 100 {
		return LayoutMedium
	}
	return LayoutWide
}

// LayoutMode represents the current responsive layout mode.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns, sidebar hidden
	LayoutMedium                   // 60-100 columns
	LayoutWide                     // > 100 columns
)
