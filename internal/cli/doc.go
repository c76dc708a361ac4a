// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the line-mode commands of
// parley.
//
// # Key Types
//
//   - Command: Enumeration of all available commands
//   - Args: Parsed arguments with global and command-specific flags
//   - App: The client core (storage tiers, token store, transport and
//     conversation store) assembled for one command
//   - Streams: The stdin/stdout/stderr a command uses
//
// # Usage
//
//	cmd, args, err := cli.Parse()
//	if err != nil { ... }
//	if err := cli.Run(ctx, cmd, args, cli.StdStreams()); err != nil {
//	    cli.DisplayError(os.Stderr, err, args.JSON)
//	    os.Exit(cli.GetExitCode(err))
//	}
//
// # Commands Overview
//
//   - login, logout: Session management
//   - status: Server, session and storage status
//   - list, show, rename, delete: Conversation management
//   - export: Save a conversation as Markdown, JSON or HTML
//   - send: One message with a streamed reply
//   - chat: Interactive chat with line editing and history
//   - config: Configuration inspection and editing
//
// Commands that print data support --json; exit codes are listed in
// errors.go.
package cli
