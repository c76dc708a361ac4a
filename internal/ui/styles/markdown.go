// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// Markdown renders assistant replies. A nil or disabled Markdown returns the
// text unchanged, as does any render failure.
type Markdown struct {
	theme string

	mu       sync.Mutex
	width    int
	renderer *glamour.TermRenderer
}

// NewMarkdown returns a renderer for theme ("dark", "light" or "auto"), or
// nil when enabled is false.
func NewMarkdown(enabled bool, theme string) *Markdown {
	if !enabled {
		return nil
	}
	return &Markdown{theme: theme}
}

// Render renders text word-wrapped to width columns.
func (m *Markdown) Render(text string, width int) string {
	if m == nil || strings.TrimSpace(text) == "" {
		return text
	}
	if width < 20 {
		width = 20
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.renderer == nil || m.width != width {
		r, err := glamour.NewTermRenderer(m.styleOption(), glamour.WithWordWrap(width))
		if err != nil {
			return text
		}
		m.renderer, m.width = r, width
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

func (m *Markdown) styleOption() glamour.TermRendererOption {
	switch m.theme {
	case "light":
		return glamour.WithStandardStyle("light")
	case "dark":
		return glamour.WithStandardStyle("dark")
	default:
		return glamour.WithAutoStyle()
	}
}
