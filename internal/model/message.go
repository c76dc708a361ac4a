// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import "time"

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the author of a message. Roles the client does not know
// are kept verbatim for display.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case "":
		return "Unknown"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is either a Final or an InProgress value.
type Message interface {
	// Author returns who wrote the message.
	Author() Role

	// Text returns the content to display.
	Text() string

	// Streaming reports whether the message is still arriving.
	Streaming() bool

	isMessage()
}

// Final is a complete message as the backend stores it.
type Final struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (m Final) Author() Role { return m.Role }
func (m Final) Text() string { return m.Content }
func (Final) Streaming() bool { return false }
func (Final) isMessage() {}

// InProgress is the assistant reply being streamed. Accumulated always holds
// the full text received so far, never a delta.
type InProgress struct {
	Accumulated string
}

func (InProgress) Author() Role { return RoleAssistant }
func (m InProgress) Text() string { return m.Accumulated }
func (InProgress) Streaming() bool { return true }
func (InProgress) isMessage() {}

// StreamFailedContent replaces a reply whose stream failed.
const StreamFailedContent = "Error: Failed to get response."

// Collapse converts m to a Final. InProgress becomes an assistant message
// holding the accumulated text.
func Collapse(m Message) Final {
	switch v := m.(type) {
	case Final:
		return v
	case InProgress:
		return Final{Role: RoleAssistant, Content: v.Accumulated}
	default:
		return Final{Role: m.Author(), Content: m.Text()}
	}
}
