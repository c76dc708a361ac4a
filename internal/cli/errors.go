// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error display and exit codes for parley commands.
//
// Handlers always return errors; main decides how to display them and
// which exit code to use.

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/chat"
	"github.com/jeranaias/parley/internal/config"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitAuthError     = 4
	ExitNetworkError  = 5
	ExitNotFoundError = 7
	ExitCanceled      = 130
)

// ErrNotLoggedIn is returned by commands that need a session when none is
// stored.
var ErrNotLoggedIn = errors.New("not logged in; run 'parley login'")

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string
	Action  string
	Reason  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError creates a new command error.
func NewCommandError(command, action, reason string, err error) error {
	return &CommandError{Command: command, Action: action, Reason: reason, Err: err}
}

// =============================================================================
// DISPLAY
// =============================================================================

// Describe returns the message shown to the user for err. Backend failures
// use the same wording the TUI shows.
func Describe(err error) string {
	var apiErr *api.APIError
	switch {
	case errors.Is(err, ErrNotLoggedIn):
		return err.Error()
	case errors.Is(err, api.ErrUnauthorized):
		return "session expired or invalid; run 'parley login'"
	case api.Classify(err) == api.KindCanceled:
		return "canceled"
	case errors.As(err, &apiErr):
		return api.UserMessage(err)
	}
	return err.Error()
}

// DisplayError writes err to w, as JSON in JSON mode.
func DisplayError(w io.Writer, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		out := map[string]interface{}{
			"success":    false,
			"error":      Describe(err),
			"error_type": errorType(err),
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("Error:"), Describe(err))
}

func errorType(err error) string {
	switch GetExitCode(err) {
	case ExitUsageError:
		return "usage_error"
	case ExitConfigError:
		return "config_error"
	case ExitAuthError:
		return "auth_error"
	case ExitNetworkError:
		return "network_error"
	case ExitNotFoundError:
		return "not_found_error"
	case ExitCanceled:
		return "canceled"
	default:
		return "generic_error"
	}
}

// GetExitCode determines the exit code for err.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if errors.Is(err, ErrUsage) {
		return ExitUsageError
	}
	if errors.Is(err, ErrNotLoggedIn) {
		return ExitAuthError
	}
	if errors.Is(err, chat.ErrNotFound) {
		return ExitNotFoundError
	}
	var verrs config.ValidateErrors
	if errors.As(err, &verrs) {
		return ExitConfigError
	}

	if errors.Is(err, api.ErrUnauthorized) {
		return ExitAuthError
	}
	if api.Classify(err) == api.KindCanceled {
		return ExitCanceled
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status == 404 {
			return ExitNotFoundError
		}
		return ExitNetworkError
	}
	var transportErr *api.TransportError
	var streamErr *api.StreamError
	if errors.As(err, &transportErr) || errors.As(err, &streamErr) {
		return ExitNetworkError
	}
	return ExitGeneralError
}
