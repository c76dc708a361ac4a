// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across parley.
//
//   - AtomicWriteFile: crash-safe file replacement for config and key files
//   - TruncateWidth / StringWidth: terminal-width aware string handling for
//     conversation titles and previews
//   - Preview: single-line excerpt of message content
package util
