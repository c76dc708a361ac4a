// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Assembles the client core for a command.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/auth"
	"github.com/jeranaias/parley/internal/chat"
	"github.com/jeranaias/parley/internal/config"
	"github.com/jeranaias/parley/internal/logging"
	"github.com/jeranaias/parley/internal/storage"
	"github.com/jeranaias/parley/internal/tabsync"
)

// PassphraseEnv supplies the passphrase when auth.seal is "passphrase".
const PassphraseEnv = "PARLEY_PASSPHRASE"

// App is one running parley instance: the durable tier it shares with other
// instances, its own session tier, and the core built on them.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Durable *storage.SQLiteTier
	Session *storage.MemoryTier
	Tokens  *auth.TokenStore
	Client  *api.Client
	Store   *chat.Store

	sync *tabsync.Synchronizer
}

// LoadConfig loads configuration honoring --config and --server. A broken
// config file is reported on stderr and defaults are used, like a missing
// one.
func LoadConfig(args Args) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg, err = config.Load()
		if cfg == nil {
			return nil, err
		}
		if err != nil && !args.Quiet {
			fmt.Fprintf(os.Stderr, "%s %v (using defaults)\n", WarningStyle.Render("Warning:"), err)
		}
	}

	if args.Server != "" {
		cfg.Server.URL = args.Server
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	config.SetGlobal(cfg)
	return cfg, nil
}

// OpenApp builds the full client core for args. The caller must Close it.
func OpenApp(args Args) (*App, error) {
	cfg, err := LoadConfig(args)
	if err != nil {
		return nil, NewCommandError("config", "load", "invalid configuration", err)
	}

	logPath, err := cfg.LogPath()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		File:    logPath,
		Verbose: args.Verbose,
	})
	if err != nil {
		return nil, NewCommandError("logging", "open", "cannot open log", err)
	}

	statePath, err := cfg.StatePath()
	if err != nil {
		return nil, err
	}
	durable, err := storage.OpenSQLite(statePath)
	if err != nil {
		return nil, NewCommandError("storage", "open", statePath, err)
	}
	logger = logger.With(zap.String("origin", durable.Origin()))

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Durable: durable,
		Session: storage.NewMemoryTier(),
	}

	sealer, err := buildSealer(cfg)
	if err != nil {
		app.Close()
		return nil, NewCommandError("auth", "seal", "cannot set up token sealing", err)
	}
	tokenOpts := []auth.Option{auth.WithLogger(logger.Named("auth"))}
	if sealer != nil {
		tokenOpts = append(tokenOpts, auth.WithSealer(sealer))
	}
	app.Tokens = auth.NewTokenStore(durable, app.Session, tokenOpts...)

	app.Client, err = api.New(cfg.Server.URL, app.Tokens,
		api.WithTimeout(cfg.Timeout()),
		api.WithUserAgent("parley/"+Version),
		api.WithLogger(logger.Named("api")))
	if err != nil {
		app.Close()
		return nil, NewCommandError("api", "connect", "invalid server URL", err)
	}

	app.Store = chat.New(app.Client, app.Tokens, durable, chat.WithLogger(logger.Named("chat")))
	return app, nil
}

// buildSealer returns the Sealer selected by auth.seal, or nil for none.
func buildSealer(cfg *config.Config) (auth.Sealer, error) {
	switch cfg.Auth.Seal {
	case config.SealAge:
		path, err := cfg.IdentityPath()
		if err != nil {
			return nil, err
		}
		return auth.LoadAgeSealer(path)
	case config.SealPassphrase:
		pass := os.Getenv(PassphraseEnv)
		if pass == "" {
			return nil, fmt.Errorf("%s must be set when auth.seal is %q", PassphraseEnv, config.SealPassphrase)
		}
		path, err := cfg.SaltPath()
		if err != nil {
			return nil, err
		}
		salt, err := auth.LoadOrCreateSalt(path)
		if err != nil {
			return nil, err
		}
		return auth.NewPassphraseSealer(pass, salt, 0)
	default:
		return nil, nil
	}
}

// StartSync follows changes made by other instances: a logout anywhere ends
// this session, and conversation list changes reload the list.
func (a *App) StartSync() error {
	if a.sync != nil {
		return errors.New("sync already started")
	}
	s := tabsync.New(tabsync.NewBus(),
		tabsync.WithLogger(a.Logger.Named("sync")),
		tabsync.WithRefreshRate(a.Config.Sync.RefreshPerSecond))
	s.Attach(a.Store, a.Tokens)
	if err := s.Watch(a.Durable, storage.WatchConfig{
		Debounce:     a.Config.Debounce(),
		PollInterval: a.Config.PollInterval(),
		ForcePolling: a.Config.Sync.ForcePolling,
	}); err != nil {
		s.Close()
		return err
	}
	a.sync = s
	return nil
}

// Bus returns the cross-instance notification bus, or nil before StartSync.
func (a *App) Bus() *tabsync.Bus {
	if a.sync == nil {
		return nil
	}
	return a.sync.Bus()
}

// Remember reports whether a login should be kept in the durable tier.
// --no-remember always wins over auth.remember.
func (a *App) Remember(args Args) bool {
	return a.Config.Auth.Remember && !args.NoRemember
}

// Login authenticates and stores the session as Remember decides.
func (a *App) Login(ctx context.Context, args Args, email, password string) error {
	tokens, err := a.Client.Login(ctx, email, password)
	if err != nil {
		a.Logger.Info("login failed", zap.String("email", email), zap.Error(err))
		return err
	}
	remember := a.Remember(args)
	// Token prefers the durable tier, so an older durable session would hide
	// a session-only login.
	if !remember && a.Tokens.Location() == auth.LocationDurable {
		if err := a.Tokens.Clear(); err != nil {
			return NewCommandError("login", "save", "cannot replace stored session", err)
		}
	}
	if err := a.Tokens.Save(tokens, remember); err != nil {
		return NewCommandError("login", "save", "cannot store session", err)
	}
	a.Logger.Info("logged in", zap.String("email", email), zap.Bool("remember", remember))
	return nil
}

// Close stops sync, waits for background work, and releases storage.
func (a *App) Close() error {
	var errs []error
	if a.sync != nil {
		errs = append(errs, a.sync.Close())
		a.sync = nil
	}
	if a.Store != nil {
		a.Store.Close()
	}
	if a.Durable != nil {
		errs = append(errs, a.Durable.Close())
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}
