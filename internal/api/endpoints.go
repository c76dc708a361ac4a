// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP transport to the chat backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jeranaias/parley/internal/auth"
	"github.com/jeranaias/parley/internal/model"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// ID is a backend identifier. The backend may encode ids as JSON strings or
// numbers; both decode to their string form.
type ID string

// UnmarshalJSON accepts a string or a number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	if string(data) == "null" {
		*id = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// Timestamp parses the backend's ISO-8601 timestamps leniently. Unparseable
// values decode to the zero time.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON parses an ISO-8601 string.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		ts.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			ts.Time = t
			return nil
		}
	}
	ts.Time = time.Time{}
	return nil
}

// ChatSummary is one entry of GET /chats.
type ChatSummary struct {
	ID        ID        `json:"id"`
	Title     string    `json:"title"`
	CreatedAt Timestamp `json:"created_at"`
}

// ChatMessage is one entry of GET /chats/{id}.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt Timestamp `json:"created_at"`
}

// ToModel converts a wire message to a final model message.
func (m ChatMessage) ToModel() model.Final {
	return model.Final{Role: model.Role(m.Role), Content: m.Content, CreatedAt: m.CreatedAt.Time}
}

// ToModel converts a wire summary to an unloaded conversation. Empty titles
// become model.DefaultTitle.
func (s ChatSummary) ToModel() model.Conversation {
	title := s.Title
	if strings.TrimSpace(title) == "" {
		title = model.DefaultTitle
	}
	return model.Conversation{ID: string(s.ID), Title: title, CreatedAt: s.CreatedAt.Time}
}

// =============================================================================
// AUTH
// =============================================================================

// ErrMissingToken indicates a successful login response without a token.
var ErrMissingToken = errors.New("login response did not include an access token")

// Login exchanges credentials for tokens. It does not store them.
func (c *Client) Login(ctx context.Context, email, password string) (auth.Tokens, error) {
	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	err := c.doJSON(ctx, call{
		method:   http.MethodPost,
		path:     "/login",
		body:     map[string]string{"email": email, "password": password},
		fallback: "Login failed",
	}, &resp)
	if err != nil {
		return auth.Tokens{}, err
	}
	if resp.AccessToken == "" {
		return auth.Tokens{}, ErrMissingToken
	}
	return auth.Tokens{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}, nil
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func chatPath(id string, suffix string) string {
	return "/chats/" + url.PathEscape(id) + suffix
}

// ListChats returns the user's conversations in server order.
func (c *Client) ListChats(ctx context.Context) ([]ChatSummary, error) {
	var chats []ChatSummary
	err := c.doJSON(ctx, call{
		method:   http.MethodGet,
		path:     "/chats",
		auth:     true,
		fallback: "Failed to fetch chats",
	}, &chats)
	return chats, err
}

// GetChat returns a conversation's message log.
func (c *Client) GetChat(ctx context.Context, id string) ([]ChatMessage, error) {
	var resp struct {
		Messages []ChatMessage `json:"messages"`
	}
	err := c.doJSON(ctx, call{
		method:   http.MethodGet,
		path:     chatPath(id, ""),
		auth:     true,
		fallback: "Failed to fetch chat messages",
	}, &resp)
	return resp.Messages, err
}

// CreateOrAppend appends message to chat id, or creates a new conversation
// when id is empty. It returns the conversation id.
func (c *Client) CreateOrAppend(ctx context.Context, message, id string) (string, error) {
	body := struct {
		Message string  `json:"message"`
		ChatID  *string `json:"chat_id"`
	}{Message: message}
	if id != "" {
		body.ChatID = &id
	}

	var resp struct {
		ChatID ID `json:"chat_id"`
	}
	err := c.doJSON(ctx, call{
		method:   http.MethodPost,
		path:     "/chat",
		body:     body,
		auth:     true,
		fallback: "Failed to create/update chat",
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.ChatID == "" {
		return "", &APIError{Status: http.StatusOK, Message: "server did not return a chat id"}
	}
	return string(resp.ChatID), nil
}

var titlePrefix = regexp.MustCompile(`(?i)^title:\s*`)

// CleanTitle strips a leading "Title:" label, trims, and falls back to
// model.DefaultTitle when nothing is left.
func CleanTitle(raw string) string {
	title := strings.TrimSpace(titlePrefix.ReplaceAllString(raw, ""))
	if title == "" {
		return model.DefaultTitle
	}
	return title
}

// GenerateTitle asks the backend to summarize message as a title.
func (c *Client) GenerateTitle(ctx context.Context, message string) (string, error) {
	var resp struct {
		Title string `json:"title"`
	}
	err := c.doJSON(ctx, call{
		method:   http.MethodPost,
		path:     "/chat-title",
		body:     map[string]string{"message": message},
		auth:     true,
		fallback: "Failed to generate title",
	}, &resp)
	if err != nil {
		return "", err
	}
	return CleanTitle(resp.Title), nil
}

// DeleteChat deletes a conversation. Any 2xx is success.
func (c *Client) DeleteChat(ctx context.Context, id string) error {
	return c.doJSON(ctx, call{
		method:   http.MethodDelete,
		path:     chatPath(id, ""),
		auth:     true,
		fallback: "Failed to delete chat",
	}, nil)
}

// UpdateTitle renames a conversation and returns the title the server
// stored.
func (c *Client) UpdateTitle(ctx context.Context, id, title string) (string, error) {
	var resp struct {
		Title string `json:"title"`
	}
	err := c.doJSON(ctx, call{
		method:   http.MethodPatch,
		path:     chatPath(id, "/title"),
		body:     map[string]string{"message": title},
		auth:     true,
		fallback: "Failed to update chat title",
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Title != "" {
		return resp.Title, nil
	}
	return title, nil
}
