// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP transport to the chat backend.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnauthorized indicates the backend rejected the bearer token. The
	// stored credentials have already been cleared when this is returned.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrResponseTooLarge indicates a response exceeded MaxResponseSize.
	ErrResponseTooLarge = errors.New("response exceeded maximum size")
)

// APIError is a non-2xx, non-401 response.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// TransportError is a failure below HTTP: DNS, dial, reset, truncated body.
type TransportError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error { return e.Err }

// =============================================================================
// CLASSIFICATION
// =============================================================================

// ErrorKind groups errors by how callers should react.
type ErrorKind int

const (
	// KindNone is a nil error.
	KindNone ErrorKind = iota

	// KindUnauthorized forces a logout.
	KindUnauthorized

	// KindNetworkOrServer is shown to the user; no automatic retry.
	KindNetworkOrServer

	// KindCanceled means the caller gave up; nothing to show.
	KindCanceled
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindUnauthorized:
		return "unauthorized"
	case KindNetworkOrServer:
		return "network_or_server"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Classify maps err to an ErrorKind.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindNetworkOrServer
	}
}

// UserMessage returns the text to show for err.
func UserMessage(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "Session expired. Please log in again."
	case errors.As(err, &apiErr):
		return apiErr.Message
	default:
		return err.Error()
	}
}

// =============================================================================
// MESSAGE EXTRACTION
// =============================================================================

// extractMessage picks the best human-readable message from an error body:
// the JSON "detail" field, else the raw body text, else fallback.
func extractMessage(body []byte, fallback string) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 && string(payload.Detail) != "null" {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		} else {
			// Structured detail (e.g. validation errors) is shown as JSON
			return string(payload.Detail)
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return fallback
}
