// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Configuration inspection and editing.
//
// Command: config [show|path|init|get|set]
//
// Examples:
//   parley config                         Show the effective configuration
//   parley config path                    Print the config file path
//   parley config init                    Write a default config.toml
//   parley config get server.url          Print one value
//   parley config set ui.theme light      Change one value and save

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/parley/internal/config"
)

// ConfigPathData is the data returned by "config path".
type ConfigPathData struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

// HandleConfig dispatches the config subcommands.
func HandleConfig(std Streams, args Args) error {
	switch args.Subcommand {
	case "", "show":
		return handleConfigShow(std, args)
	case "path":
		return handleConfigPath(std, args)
	case "init":
		return handleConfigInit(std, args)
	case "get":
		return handleConfigGet(std, args)
	case "set":
		return handleConfigSet(std, args)
	default:
		return fmt.Errorf("%w: unknown config subcommand: %s", ErrUsage, args.Subcommand)
	}
}

// configFilePath is the file config set and init write to.
func configFilePath(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	return config.ConfigPathTOML()
}

func handleConfigShow(std Streams, args Args) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("config show", cfg).PrintTo(std.Out)
	}

	fmt.Fprintln(std.Out, TitleStyle.Render("parley configuration"))
	for _, key := range config.GetAllKeys() {
		v, err := cfg.Get(key)
		if err != nil {
			continue
		}
		fmt.Fprintf(std.Out, "%s %v\n", LabelStyle.Copy().Width(26).Render(key), formatConfigValue(v))
	}
	return nil
}

func formatConfigValue(v interface{}) string {
	if s, ok := v.(string); ok && s == "" {
		return DimStyle.Render("(not set)")
	}
	return ValueStyle.Render(fmt.Sprint(v))
}

func handleConfigPath(std Streams, args Args) error {
	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	_, statErr := os.Stat(path)
	exists := statErr == nil

	if args.JSON {
		return NewJSONResponse("config path", ConfigPathData{Path: path, Exists: exists}).PrintTo(std.Out)
	}
	fmt.Fprintln(std.Out, path)
	if !exists && !args.Quiet {
		fmt.Fprintln(std.Err, DimStyle.Render("(file does not exist; 'parley config init' creates it)"))
	}
	return nil
}

func handleConfigInit(std Streams, args Args) error {
	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := config.SaveTOML(config.Default(), path); err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("config init", ConfigPathData{Path: path, Exists: true}).PrintTo(std.Out)
	}
	fmt.Fprintf(std.Out, "%s Wrote %s\n", SuccessStyle.Render("[OK]"), path)
	return nil
}

func handleConfigGet(std Streams, args Args) error {
	if args.ConfigKey == "" {
		return fmt.Errorf("%w: no config key provided\nUsage: parley config get <key>", ErrUsage)
	}
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	key := normalizeConfigKey(args.ConfigKey)
	v, err := cfg.Get(key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if args.JSON {
		return NewJSONResponse("config get", map[string]interface{}{"key": key, "value": v}).PrintTo(std.Out)
	}
	fmt.Fprintln(std.Out, v)
	return nil
}

// handleConfigSet loads the config file alone (no environment overrides),
// changes one key, validates and saves it.
func handleConfigSet(std Streams, args Args) error {
	if args.ConfigKey == "" {
		return fmt.Errorf("%w: no config key provided\nUsage: parley config set <key> <value>", ErrUsage)
	}
	if args.ConfigVal == "" {
		return fmt.Errorf("%w: no config value provided\nUsage: parley config set %s <value>", ErrUsage, args.ConfigKey)
	}
	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".toml" && ext != "" {
		return fmt.Errorf("config set only writes TOML files, not %s", path)
	}

	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		if err := config.LoadTOML(cfg, path); err != nil {
			return err
		}
	}

	key := normalizeConfigKey(args.ConfigKey)
	value := args.ConfigVal
	if cur, err := cfg.Get(key); err == nil {
		if _, isBool := cur.(bool); isBool {
			b, err := ParseBoolString(value)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrUsage, err)
			}
			value = fmt.Sprint(b)
		}
	}
	if err := cfg.Set(key, value); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if err := cfg.Migrate(); err != nil {
		return err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return err
	}
	if args.JSON {
		v, _ := cfg.Get(key)
		return NewJSONResponse("config set", map[string]interface{}{"key": key, "value": v}).PrintTo(std.Out)
	}
	fmt.Fprintf(std.Out, "%s %s = %s\n", SuccessStyle.Render("[OK]"), key, args.ConfigVal)
	return nil
}

// normalizeConfigKey makes dotted keys case-insensitive.
func normalizeConfigKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
