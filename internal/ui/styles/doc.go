// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for parley.

Colors are lipgloss AdaptiveColors; NewTheme picks the light or dark variant
from the ui.theme setting, asking the terminal when it is "auto".

Markdown renders assistant replies with glamour and is shared by the TUI and
the line-mode chat. SpinnerConfig frames feed the bubbles spinner shown while
a reply is pending.

Usage:

	theme := styles.NewTheme(cfg.UI.Theme)
	theme.SetSize(width, height)
	md := styles.NewMarkdown(cfg.UI.Markdown, cfg.UI.Theme)
	out := md.Render(reply, width)
*/
package styles
