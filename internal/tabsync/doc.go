// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tabsync keeps parley instances on one machine in agreement.
//
// Every instance writes to the same durable tier. When one instance logs out
// it stamps auth_cleared_at; when it changes the conversation list it stamps
// chats_updated_at. A storage watcher in every other instance sees those
// writes and the Synchronizer turns them into Bus notifications:
//
//	auth_cleared_at   -> SessionCleared       (drop session tokens, reset UI)
//	chats_updated_at  -> ConversationsChanged (reload the conversation list)
//
// Writes are never reported back to the instance that made them.
package tabsync
