// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	appchat "github.com/jeranaias/parley/internal/chat"
)

// =============================================================================
// MESSAGES
// =============================================================================

// SnapshotMsg carries a new store snapshot into the program.
type SnapshotMsg struct {
	Snapshot appchat.Snapshot
}

// LoggedOutMsg means the session ended, here or in another instance.
type LoggedOutMsg struct{}

// loginDoneMsg reports the outcome of a login attempt.
type loginDoneMsg struct {
	err error
}

// loadDoneMsg reports the initial conversation list load.
type loadDoneMsg struct {
	err error
}

// sendDoneMsg is returned when a send, including its stream, has finished.
type sendDoneMsg struct {
	err error
}

// opDoneMsg reports a select, rename, delete or logout.
type opDoneMsg struct {
	op  string
	err error
}
