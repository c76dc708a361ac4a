// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a conversation to a file for reading outside parley.
//
// # Formats
//
//   - Markdown: YAML frontmatter followed by one section per message
//   - JSON: the conversation as the backend describes it
//   - HTML: a standalone page with embedded CSS
//
// # Usage
//
//	exp, err := export.New(export.FormatMarkdown, export.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	path, err := export.WriteFile(conv, exp, ".", time.Now())
//
// In-progress replies are exported as the text received so far.
package export
