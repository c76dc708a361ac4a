// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat is the parley terminal UI, built on Bubble Tea.

The Model renders whatever the conversation store last published: a
conversation list on the left, the active conversation in a scrolling
viewport, and a one-line message input. Keys are turned into store
operations (send, select, new, rename, delete, search, logout) that run as
tea.Cmds off the event loop; the resulting state arrives back as
SnapshotMsg values through Forward.

# Usage

	m := chat.New(chat.Options{Core: store, Login: login, LoggedIn: true})
	p := tea.NewProgram(m, tea.WithAltScreen())
	stop := chat.Forward(p, store)
	defer stop()
	_, err := p.Run()

A LoggedOutMsg, whether from the logout key, a rejected token or another
instance signing out, returns the program to the login form.
*/
package chat
