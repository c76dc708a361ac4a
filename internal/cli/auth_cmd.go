// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// auth_cmd.go - Login and logout.
//
// Command: login [--email E] [--no-remember]
// Command: logout
//
// A login stores the session in the shared state database, so every other
// parley instance picks it up. A logout clears it there and marks the
// logout so running instances return to their login screens.

package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// PasswordEnv supplies the login password non-interactively.
const PasswordEnv = "PARLEY_PASSWORD"

// LoginData is the data returned by the login command.
type LoginData struct {
	Email     string     `json:"email"`
	Location  string     `json:"token_location"`
	Subject   string     `json:"subject,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// HandleLogin prompts for credentials, exchanges them for tokens and stores
// them.
func HandleLogin(ctx context.Context, app *App, args Args, std Streams) error {
	email := strings.TrimSpace(args.Email)
	if email == "" {
		email = strings.TrimSpace(positionalAt(args.Positional, 0))
	}
	if email == "" {
		if args.JSON {
			return fmt.Errorf("%w: --email is required with --json", ErrUsage)
		}
		var err error
		if email, err = promptInput(std.In, std.Err, "Email: "); err != nil {
			return fmt.Errorf("failed to read email: %w", err)
		}
	}
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrUsage)
	}

	password := os.Getenv(PasswordEnv)
	if password == "" {
		var err error
		if password, err = readPassword(std.In, std.Err, "Password: "); err != nil {
			return err
		}
	}
	if password == "" {
		return fmt.Errorf("%w: password is required", ErrUsage)
	}

	if err := app.Login(ctx, args, email, password); err != nil {
		return err
	}

	data := LoginData{Email: email, Location: string(app.Tokens.Location())}
	if claims, err := app.Tokens.Claims(); err == nil {
		data.Subject = claims.Subject
		if claims.HasExpiry {
			data.ExpiresAt = timePtr(claims.ExpiresAt)
		}
	}

	if args.JSON {
		return NewJSONResponse("login", data).PrintTo(std.Out)
	}
	fmt.Fprintf(std.Out, "%s Logged in as %s\n", SuccessStyle.Render("[OK]"), email)
	if !app.Remember(args) && !args.Quiet {
		fmt.Fprintln(std.Out, DimStyle.Render("  Session kept in memory only; it ends when this command exits."))
	}
	if data.ExpiresAt != nil && !args.Quiet {
		fmt.Fprintf(std.Out, "  Expires in %s\n", formatDuration(time.Until(*data.ExpiresAt)))
	}
	return nil
}

// HandleLogout clears the session here and in every other instance.
func HandleLogout(app *App, args Args, std Streams) error {
	_, had := app.Tokens.Token()
	if err := app.Store.Logout(); err != nil {
		return NewCommandError("logout", "clear", "cannot clear session", err)
	}
	if args.JSON {
		return NewJSONResponse("logout", map[string]bool{"was_logged_in": had}).PrintTo(std.Out)
	}
	if !had {
		fmt.Fprintln(std.Out, DimStyle.Render("Not logged in."))
		return nil
	}
	fmt.Fprintf(std.Out, "%s Logged out\n", SuccessStyle.Render("[OK]"))
	return nil
}
