// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Conversation: a backend-issued chat with its cached message log
//   - Message: tagged union of Final (persisted) and InProgress (the
//     assistant reply currently streaming, never persisted)
//   - Role: message author (user, assistant)
//
// A conversation holds at most one InProgress message and it is always the
// last one.
//
// # Usage
//
//	conv := model.Conversation{ID: "42", Title: model.DefaultTitle}
//	conv.Append(model.Final{Role: model.RoleUser, Content: "Hello!"})
//	conv.StartStreaming()
//	conv.UpdateStreaming("Hi")
//	conv.FinishStreaming()
package model
