// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// confirm.go - Confirmation handling for destructive commands.
//
// The pattern is:
//  1. --yes proceeds without prompting
//  2. --json requires --yes (no interactive prompts in JSON mode)
//  3. a non-TTY stdin requires --yes
//  4. otherwise the user is asked y/N

package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// RequireConfirmation reports whether a destructive action may proceed.
func RequireConfirmation(confirmFlag bool, action string, jsonMode bool) (bool, error) {
	if confirmFlag {
		return true, nil
	}
	if jsonMode {
		return false, fmt.Errorf("%w: confirmation required; use --yes in JSON mode", ErrUsage)
	}
	if !IsTTY() {
		return false, fmt.Errorf("%w: confirmation required but stdin is not a terminal; use --yes", ErrUsage)
	}
	return promptYesNo(bufio.NewReader(os.Stdin), os.Stdout, fmt.Sprintf("Are you sure you want to %s?", action))
}

// promptYesNo asks question and returns true only for y or yes.
func promptYesNo(r *bufio.Reader, w io.Writer, question string) (bool, error) {
	input, err := promptInput(r, w, question+" [y/N]: ")
	if err != nil {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	response := strings.ToLower(input)
	return response == "y" || response == "yes", nil
}
