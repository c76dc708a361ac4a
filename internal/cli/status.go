// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status.go - Server, session and storage status.
//
// Command: status, s [--json]
//
// The server is only probed while logged in, by listing conversations; a
// rejected token shows up as logged out.

package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/config"
	"github.com/jeranaias/parley/internal/storage"
)

// HandleStatus prints the state of this installation.
func HandleStatus(ctx context.Context, app *App, args Args, std Streams) error {
	data := collectStatus(ctx, app)
	if args.JSON {
		return NewJSONResponse("status", data).PrintTo(std.Out)
	}

	w := std.Out
	fmt.Fprintln(w, TitleStyle.Render("parley status"))
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Server:"), ValueStyle.Render(data.Server))
	switch {
	case data.Reachable == nil:
		fmt.Fprintf(w, "%s%s\n", RenderLabel("Reachable:"), DimStyle.Render("not checked (log in first)"))
	case *data.Reachable:
		fmt.Fprintf(w, "%s%s %d conversations\n", RenderLabel("Reachable:"), RenderStatus("ok"), data.Chats)
	default:
		fmt.Fprintf(w, "%s%s\n", RenderLabel("Reachable:"), RenderStatus("fail"))
	}

	if data.LoggedIn {
		fmt.Fprintf(w, "%s%s (%s)\n", RenderLabel("Session:"), RenderStatus("ok"), data.Location)
		if data.Subject != "" {
			fmt.Fprintf(w, "%s%s\n", RenderLabel("Account:"), data.Subject)
		}
		if data.ExpiresAt != nil {
			fmt.Fprintf(w, "%sin %s\n", RenderLabel("Expires:"), formatDuration(time.Until(*data.ExpiresAt)))
		}
	} else {
		fmt.Fprintf(w, "%s%s\n", RenderLabel("Session:"), DimStyle.Render("not logged in"))
	}

	fmt.Fprintf(w, "%s%s\n", RenderLabel("Token seal:"), data.Seal)
	fmt.Fprintf(w, "%s%s\n", RenderLabel("State:"), data.StatePath)
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Config dir:"), data.ConfigDir)
	if data.LastChat != "" {
		fmt.Fprintf(w, "%s%s\n", RenderLabel("Last chat:"), data.LastChat)
	}
	return nil
}

func collectStatus(ctx context.Context, app *App) StatusData {
	data := StatusData{
		Server:    app.Client.BaseURL(),
		Seal:      app.Config.Auth.Seal,
		StatePath: app.Durable.Path(),
	}
	if data.Seal == "" {
		data.Seal = config.SealNone
	}
	if dir, err := config.ConfigDir(); err == nil {
		data.ConfigDir = dir
	}
	if id, ok, err := app.Durable.Get(storage.KeyLastChatID); err == nil && ok {
		data.LastChat = id
	}

	if app.Tokens.IsValid() {
		chats, err := app.Client.ListChats(ctx)
		reachable := err == nil
		var apiErr *api.APIError
		if errors.As(err, &apiErr) || errors.Is(err, api.ErrUnauthorized) {
			reachable = true
		}
		data.Reachable = &reachable
		data.Chats = len(chats)
	}

	// Re-read: a rejected token was cleared by the probe.
	data.Location = string(app.Tokens.Location())
	if claims, err := app.Tokens.Claims(); err == nil {
		data.LoggedIn = true
		data.Subject = claims.Subject
		if claims.HasExpiry {
			data.ExpiresAt = timePtr(claims.ExpiresAt)
		}
	}
	return data
}
