// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP transport to the chat backend.
//
// Every authenticated call attaches the current bearer token. A 401 from any
// authenticated endpoint clears the stored credentials and surfaces as
// ErrUnauthorized; callers treat that as a forced logout and never retry.
// Other non-2xx responses become *APIError carrying the best message the
// server offered.
//
// # Streaming
//
// StreamChat pushes decoded text to a callback as each network chunk
// arrives. Multi-byte characters split across chunks are reassembled by a
// StreamDecoder before delivery.
//
//	err := client.StreamChat(ctx, chatID, "hello",
//	    func(text string) { fmt.Print(text) },
//	    func(err error) { log.Println("stream failed:", err) })
package api
