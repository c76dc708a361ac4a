// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for parley.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (PARLEY_*)
//   - ~/.parley/config.toml
//   - ~/.parley/config.yaml
//   - ~/.parley/config.json (comments and trailing commas allowed)
//   - Built-in defaults
//
// PARLEY_HOME relocates ~/.parley.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := api.New(cfg.Server.URL, tokens, api.WithTimeout(cfg.Timeout()))
package config
