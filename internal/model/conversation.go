// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"time"

	"github.com/jeranaias/parley/internal/util"
)

// DefaultTitle is shown until a generated title arrives, and whenever the
// backend reports an empty one.
const DefaultTitle = "New Chat"

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is a chat owned by the backend. Messages is the locally
// cached log; it is empty until the log has been fetched.
type Conversation struct {
	ID        string
	Title     string
	CreatedAt time.Time
	Messages  []Message
}

// Loaded reports whether the message log has been fetched.
func (c *Conversation) Loaded() bool {
	return len(c.Messages) > 0
}

// DisplayTitle returns Title, or DefaultTitle when it is blank.
func (c *Conversation) DisplayTitle() string {
	if strings.TrimSpace(c.Title) == "" {
		return DefaultTitle
	}
	return c.Title
}

// Clone returns a copy that shares no mutable state with c.
func (c *Conversation) Clone() Conversation {
	clone := *c
	if c.Messages != nil {
		clone.Messages = append([]Message(nil), c.Messages...)
	}
	return clone
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// Append adds a final message. Any in-progress reply is collapsed first so it
// stays last.
func (c *Conversation) Append(m Final) {
	c.FinishStreaming()
	c.Messages = append(c.Messages, m)
}

// StartStreaming appends an empty InProgress placeholder.
func (c *Conversation) StartStreaming() {
	c.FinishStreaming()
	c.Messages = append(c.Messages, InProgress{})
}

// UpdateStreaming replaces the in-progress content with accumulated. It
// reports false when nothing is streaming.
func (c *Conversation) UpdateStreaming(accumulated string) bool {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Streaming() {
			c.Messages[i] = InProgress{Accumulated: accumulated}
			return true
		}
	}
	return false
}

// FinishStreaming collapses every in-progress message to a final one.
func (c *Conversation) FinishStreaming() {
	for i, m := range c.Messages {
		if m.Streaming() {
			c.Messages[i] = Collapse(m)
		}
	}
}

// FailStreaming replaces every in-progress message with the stream failure
// notice.
func (c *Conversation) FailStreaming() {
	for i, m := range c.Messages {
		if m.Streaming() {
			c.Messages[i] = Final{Role: RoleAssistant, Content: StreamFailedContent}
		}
	}
}

// StreamingCount returns how many messages are in progress.
func (c *Conversation) StreamingCount() int {
	n := 0
	for _, m := range c.Messages {
		if m.Streaming() {
			n++
		}
	}
	return n
}

// LastMessage returns the newest message, or nil.
func (c *Conversation) LastMessage() Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// Preview returns a one-line excerpt of the newest message.
func (c *Conversation) Preview(maxWidth int) string {
	last := c.LastMessage()
	if last == nil {
		return ""
	}
	return util.Preview(last.Text(), maxWidth)
}

// =============================================================================
// SEARCH
// =============================================================================

// MatchesQuery reports whether the title contains query, ignoring case. A
// blank (whitespace-only) query matches everything; otherwise the query is
// matched as typed.
func (c *Conversation) MatchesQuery(query string) bool {
	if strings.TrimSpace(query) == "" {
		return true
	}
	return strings.Contains(strings.ToLower(c.DisplayTitle()), strings.ToLower(query))
}

// Filter returns the conversations matching query in their original order.
func Filter(convs []Conversation, query string) []Conversation {
	out := make([]Conversation, 0, len(convs))
	for i := range convs {
		if convs[i].MatchesQuery(query) {
			out = append(out, convs[i])
		}
	}
	return out
}
