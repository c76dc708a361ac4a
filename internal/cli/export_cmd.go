// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// export_cmd.go - Saving a conversation to a file.
//
// Command: export <id|n> [--format md|json|html] [--output PATH]

package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/parley/internal/chat"
	"github.com/jeranaias/parley/internal/export"
)

// HandleExport writes one conversation in the requested format.
func HandleExport(ctx context.Context, app *App, args Args, std Streams) error {
	if err := requireArgs(args, 1, "parley export <id|n> [--format md|json|html] [--output PATH]"); err != nil {
		return err
	}
	format, err := export.ParseFormat(args.Format)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if args.JSON && args.Output == "-" {
		return fmt.Errorf("%w: --output - cannot be combined with --json", ErrUsage)
	}

	if err := loadChats(ctx, app); err != nil {
		return err
	}
	id, err := resolveChat(app.Store.Snapshot(), args.Positional[0])
	if err != nil {
		return err
	}
	if err := app.Store.Select(ctx, id); err != nil {
		return err
	}
	conv, ok := app.Store.Snapshot().Find(id)
	if !ok {
		return fmt.Errorf("%w: %s", chat.ErrNotFound, id)
	}

	opts := export.DefaultOptions()
	if app.Config.UI.Theme == "light" {
		opts.Theme = "light"
	}
	exp, err := export.New(format, opts)
	if err != nil {
		return err
	}

	now := time.Now()
	var path string
	switch args.Output {
	case "-":
		content, err := exp.Export(conv, now)
		if err != nil {
			return NewCommandError("export", "render", conv.DisplayTitle(), err)
		}
		_, err = std.Out.Write(content)
		return err
	case "":
		dir, err := os.Getwd()
		if err != nil {
			return err
		}
		path, err = export.WriteFile(conv, exp, dir, now)
		if err != nil {
			return NewCommandError("export", "write", conv.DisplayTitle(), err)
		}
	default:
		path = args.Output
		if err := export.WriteTo(conv, exp, path, now); err != nil {
			return NewCommandError("export", "write", conv.DisplayTitle(), err)
		}
	}
	app.Logger.Info("conversation exported",
		zap.String("chat_id", id),
		zap.String("format", string(format)),
		zap.String("path", path))

	if args.JSON {
		return NewJSONResponse("export", ExportData{ChatID: id, Format: string(format), Path: path}).PrintTo(std.Out)
	}
	fmt.Fprintf(std.Out, "%s Exported %q to %s\n", SuccessStyle.Render("[OK]"), conv.DisplayTitle(), path)
	return nil
}
