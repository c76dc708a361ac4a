// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// run.go - Command dispatch for everything except the TUI.

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
)

// Streams are the standard streams a command reads and writes.
type Streams struct {
	In  *bufio.Reader
	Out io.Writer
	Err io.Writer
}

// StdStreams returns the process's standard streams.
func StdStreams() Streams {
	return Streams{In: bufio.NewReader(os.Stdin), Out: os.Stdout, Err: os.Stderr}
}

// Run executes cmd. The TUI is started by the caller, not here.
func Run(ctx context.Context, cmd Command, args Args, std Streams) error {
	switch cmd {
	case CmdVersion:
		return HandleVersion(std.Out, args)
	case CmdHelp:
		PrintHelp(std.Out, args.HelpTopic)
		return nil
	case CmdConfig:
		return HandleConfig(std, args)
	case CmdTUI:
		return fmt.Errorf("%w: the TUI is not a line command", ErrUsage)
	}

	app, err := OpenApp(args)
	if err != nil {
		return err
	}
	defer app.Close()
	app.Logger.Debug("command started")

	switch cmd {
	case CmdLogin:
		return HandleLogin(ctx, app, args, std)
	case CmdLogout:
		return HandleLogout(app, args, std)
	case CmdStatus:
		return HandleStatus(ctx, app, args, std)
	case CmdList:
		return HandleList(ctx, app, args, std)
	case CmdShow:
		return HandleShow(ctx, app, args, std)
	case CmdSend:
		return HandleSend(ctx, app, args, std)
	case CmdRename:
		return HandleRename(ctx, app, args, std)
	case CmdDelete:
		return HandleDelete(ctx, app, args, std)
	case CmdExport:
		return HandleExport(ctx, app, args, std)
	case CmdChat:
		return HandleChat(ctx, app, args, std)
	}
	return fmt.Errorf("%w: unhandled command %s", ErrUsage, cmd)
}

// requireSession returns ErrNotLoggedIn unless a valid token is stored.
func requireSession(app *App) error {
	if !app.Tokens.IsValid() {
		return ErrNotLoggedIn
	}
	return nil
}
