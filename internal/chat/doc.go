// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat owns the client-side conversation state.
//
// A Store holds the conversation list, the active conversation, the search
// query, and the phase of each in-flight send. Every operation mutates that
// state under one mutex and then publishes an immutable Snapshot to
// subscribers, so views never see a half-applied change.
//
// Sending a message follows a fixed sequence:
//
//	Idle -> Sending -> Streaming -> Idle
//	                            \-> Failed -> Idle
//
// The user message is shown before the backend confirms it, the reply grows
// as chunks arrive, and the message log is always reloaded from the backend
// once the stream ends so local state converges on the server's record.
//
// Any operation that hits an unauthorized response resets the store and
// publishes EventLoggedOut.
package chat
