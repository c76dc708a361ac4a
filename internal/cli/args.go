// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// args.go - Flag definitions shared by every parley command.

package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// =============================================================================
// FLAG SETS
// =============================================================================

// addGlobalFlags registers the flags every command accepts.
func addGlobalFlags(fs *pflag.FlagSet, args *Args) {
	fs.BoolVarP(&args.Verbose, "verbose", "v", false, "log to stderr at debug level")
	fs.BoolVarP(&args.Quiet, "quiet", "q", false, "minimal output")
	fs.BoolVar(&args.JSON, "json", false, "machine-readable output")
	fs.StringVar(&args.ConfigPath, "config", "", "config file path")
	fs.StringVar(&args.Server, "server", "", "backend base URL")
}

// addCommandFlags registers the flags specific to cmd.
func addCommandFlags(fs *pflag.FlagSet, cmd Command, args *Args) {
	switch cmd {
	case CmdLogin:
		fs.StringVarP(&args.Email, "email", "e", "", "account email")
		fs.BoolVar(&args.NoRemember, "no-remember", false, "keep the session in this process only")
	case CmdList:
		fs.StringVarP(&args.Search, "search", "s", "", "filter by title")
	case CmdSend, CmdChat:
		fs.StringVarP(&args.ChatID, "chat", "c", "", "conversation id")
	case CmdDelete:
		fs.BoolVarP(&args.Yes, "yes", "y", false, "skip confirmation")
		fs.BoolVar(&args.Yes, "confirm", false, "alias for --yes")
	case CmdExport:
		fs.StringVarP(&args.Format, "format", "f", "md", "md, json or html")
		fs.StringVarP(&args.Output, "output", "o", "", "output file, or - for stdout")
	}
}

// =============================================================================
// HELPER FUNCTIONS FOR COMMON ARG PATTERNS
// =============================================================================

func positionalAt(args []string, i int) string {
	if i < 0 || i >= len(args) {
		return ""
	}
	return args[i]
}

func positionalFrom(args []string, i int) []string {
	if i < 0 || i >= len(args) {
		return nil
	}
	return args[i:]
}

// requireArgs returns a usage error when fewer than n positional arguments
// were given.
func requireArgs(args Args, n int, usage string) error {
	if len(args.Positional) < n {
		return fmt.Errorf("%w: missing argument\nUsage: %s", ErrUsage, usage)
	}
	return nil
}

// ParseBoolString parses a boolean from various string representations.
// Accepts: true/false, yes/no, y/n, 1/0, on/off (case-insensitive)
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1", "on":
		return true, nil
	case "false", "no", "n", "0", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %s", s)
	}
}

// parseIndex parses a 1-based list position.
func parseIndex(s string, n int) (int, bool) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 1 || i > n {
		return 0, false
	}
	return i - 1, true
}
