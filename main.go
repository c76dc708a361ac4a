// parley - a terminal client for a remote chat backend.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jeranaias/parley/internal/cli"
	"github.com/jeranaias/parley/internal/ui/chat"
	"github.com/jeranaias/parley/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args, err := cli.Parse()
	if err == nil {
		err = run(cmd, args)
	}
	if err != nil {
		cli.DisplayError(os.Stderr, err, args.JSON)
		os.Exit(cli.GetExitCode(err))
	}
}

func run(cmd cli.Command, args cli.Args) error {
	switch cmd {
	case cli.CmdTUI:
		return runTUI(args)
	case cli.CmdChat:
		// The REPL turns Ctrl+C into cancelling the reply in flight.
		return cli.Run(context.Background(), cmd, args, cli.StdStreams())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return cli.Run(ctx, cmd, args, cli.StdStreams())
}

// runTUI starts the full-screen interface.
func runTUI(args cli.Args) error {
	if err := cli.RequiresTTY("start the TUI"); err != nil {
		return err
	}

	app, err := cli.OpenApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.StartSync(); err != nil {
		app.Logger.Warn("cross-instance sync unavailable", zap.Error(err))
	}

	ui := app.Config.UI
	m := chat.New(chat.Options{
		Core: app.Store,
		Login: func(ctx context.Context, email, password string) error {
			return app.Login(ctx, args, email, password)
		},
		LoggedIn:     app.Tokens.IsValid(),
		Server:       app.Client.BaseURL(),
		Theme:        styles.NewTheme(ui.Theme),
		Markdown:     styles.NewMarkdown(ui.Markdown, ui.Theme),
		SidebarWidth: ui.SidebarWidth,
		Logger:       app.Logger.Named("tui"),
	})

	p := tea.NewProgram(m, tea.WithAltScreen())
	stop := chat.Forward(p, app.Store)
	defer stop()

	app.Logger.Info("tui started")
	_, err = p.Run()
	return err
}
